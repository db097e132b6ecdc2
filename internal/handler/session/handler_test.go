package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	chatservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/feedback"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	chats := chatservice.NewService(avatar.NewMemoryStore(avatar.Seed()))
	client := emotionservice.NewClient(emotionservice.KeywordTransport{}, nil)
	manager := rehearsal.NewManager(chats, client, rehearsal.Config{PollInterval: time.Hour})
	t.Cleanup(manager.Close)

	r := chi.NewRouter()
	New(manager).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler, body string) rehearsal.Snapshot {
	t.Helper()
	resp := do(r, http.MethodPost, "/sessions", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var snapshot rehearsal.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return snapshot
}

func TestCreateSession(t *testing.T) {
	r := setupRouter(t)
	snapshot := createSession(t, r, `{"mode":"text","avatarId":"sam"}`)

	if snapshot.ID == "" || snapshot.AvatarID != "sam" || snapshot.CurrentEmotion != "neutral" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	resp := do(r, http.MethodGet, "/sessions/"+snapshot.ID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	r := setupRouter(t)

	cases := map[string]string{
		"bad json":       `{`,
		"unknown mode":   `{"mode":"telepathy"}`,
		"unknown avatar": `{"avatarId":"nobody"}`,
	}
	for name, body := range cases {
		if resp := do(r, http.MethodPost, "/sessions", body); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestSubmitMessageAndEnd(t *testing.T) {
	r := setupRouter(t)
	snapshot := createSession(t, r, `{}`)
	base := "/sessions/" + snapshot.ID

	if resp := do(r, http.MethodPost, base+"/messages", `{"text":"  "}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/messages", `{"text":"hi there"}`); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, base+"/feedback", ""); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before end, got %d", resp.Code)
	}

	resp := do(r, http.MethodPost, base+"/end", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var report feedback.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if report.UserMessageCount != 1 || report.Engagement != feedback.TierLow {
		t.Fatalf("unexpected report: %+v", report)
	}

	if resp := do(r, http.MethodPost, base+"/messages", `{"text":"still here"}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 after end, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, base+"/feedback", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for feedback, got %d", resp.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	r := setupRouter(t)
	if resp := do(r, http.MethodGet, "/sessions/missing", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEventsStreamsInitialSnapshot(t *testing.T) {
	r := setupRouter(t)
	snapshot := createSession(t, r, `{}`)

	server := httptest.NewServer(r)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+snapshot.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request err: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	if strings.TrimSpace(line) != "event: snapshot" {
		t.Fatalf("unexpected first line: %q", line)
	}
	data, _ := reader.ReadString('\n')
	if !strings.Contains(data, snapshot.ID) {
		t.Fatalf("snapshot payload missing session id: %q", data)
	}
}
