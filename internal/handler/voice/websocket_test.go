package voice

import (
	"context"
	"encoding/binary"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
	chatservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
)

type voiceTransport struct {
	mu    sync.Mutex
	audio [][]byte
}

func (v *voiceTransport) Send(_ context.Context, req emotionmodel.Request) ([]byte, error) {
	v.mu.Lock()
	v.audio = append(v.audio, req.Audio)
	v.mu.Unlock()
	return []byte(`{"emotions":[{"name":"nervous","score":0.8}]}`), nil
}

func setup(t *testing.T) (*httptest.Server, *rehearsal.Session, *voiceTransport) {
	t.Helper()
	transport := &voiceTransport{}
	chats := chatservice.NewService(avatar.NewMemoryStore(avatar.Seed()))
	client := emotionservice.NewClient(emotionservice.KeywordTransport{}, transport)
	manager := rehearsal.NewManager(chats, client, rehearsal.Config{LevelRefresh: 5 * time.Millisecond})
	t.Cleanup(manager.Close)

	session, err := manager.Create(context.Background(), rehearsal.CreateOptions{Mode: chat.ModeVoice})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	r := chi.NewRouter()
	NewWebSocketHandler(manager).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, session, transport
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/voice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one matches, failing after the deadline.
func readUntil(t *testing.T, conn *websocket.Conn, match func(outgoingMessage) bool) outgoingMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg outgoingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func pcm(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestVoiceRoundTrip(t *testing.T) {
	server, session, transport := setup(t)
	conn := dial(t, server, session.ID())

	readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "connected" })

	if err := conn.WriteJSON(map[string]string{"type": "start"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, conn, func(m outgoingMessage) bool {
		state, ok := m.Data.(map[string]interface{})
		return m.Type == "state" && ok && state["recording"] == true
	})

	if err := conn.WriteMessage(websocket.BinaryMessage, pcm(8000, -8000, 8000, -8000)); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "level" })

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, conn, func(m outgoingMessage) bool {
		state, ok := m.Data.(map[string]interface{})
		return m.Type == "state" && ok && state["currentEmotion"] == "nervous"
	})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.audio) != 1 || !strings.HasPrefix(string(transport.audio[0]), "RIFF") {
		t.Fatalf("expected one wav submission, got %d", len(transport.audio))
	}
}

func TestUnsupportedMessageType(t *testing.T) {
	server, session, _ := setup(t)
	conn := dial(t, server, session.ID())

	if err := conn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	msg := readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "error" })
	data, _ := msg.Data.(map[string]interface{})
	if !strings.Contains(data["message"].(string), "dance") {
		t.Fatalf("unexpected error message: %+v", msg)
	}
}

func TestStopWhileIdleSendsNothingToAnalyzer(t *testing.T) {
	server, session, transport := setup(t)
	conn := dial(t, server, session.ID())
	readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "connected" })

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "state" })

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.audio) != 0 {
		t.Fatalf("stop while idle must not submit audio, got %d", len(transport.audio))
	}
}

func TestAudioWhileIdleReportsError(t *testing.T) {
	server, session, transport := setup(t)
	conn := dial(t, server, session.ID())
	readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "connected" })

	if err := conn.WriteMessage(websocket.BinaryMessage, pcm(100, -100)); err != nil {
		t.Fatalf("write err: %v", err)
	}
	msg := readUntil(t, conn, func(m outgoingMessage) bool { return m.Type == "error" })
	data, _ := msg.Data.(map[string]interface{})
	if !strings.Contains(data["message"].(string), "not recording") {
		t.Fatalf("unexpected error message: %+v", msg)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.audio) != 0 {
		t.Fatalf("idle audio must not be submitted, got %d", len(transport.audio))
	}
}
