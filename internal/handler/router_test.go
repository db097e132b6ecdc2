package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	chatservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	avatars := avatar.NewMemoryStore(avatar.Seed())
	client := emotionservice.NewClient(emotionservice.KeywordTransport{}, nil)
	manager := rehearsal.NewManager(chatservice.NewService(avatars), client, rehearsal.Config{PollInterval: time.Hour})
	t.Cleanup(manager.Close)

	return NewRouter(avatars, manager, config.EmotionConfig{Backend: config.BackendKeyword})
}

func TestHealth(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "ok" || body["emotionBackend"] != config.BackendKeyword {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestRoutesAreMountedUnderAPI(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/avatars", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("avatars: expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"mode":"voice"}`)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("sessions: expected 201, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/emotion", strings.NewReader(`{}`)))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("proxy without key: expected 401, got %d", resp.Code)
	}
}
