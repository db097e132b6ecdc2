package voice

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
	"github.com/zhouzirui/date-rehearsal/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// WebSocketHandler 语音排练的WebSocket处理器。客户端推送 PCM 音频，服务端回推状态与音量。
type WebSocketHandler struct {
	sessions *rehearsal.Manager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *rehearsal.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/voice", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AudioMessage 以 JSON 发送的音频块，二进制帧可直接携带 PCM。
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
}

// TextMessage 语音模式下也允许输入文字
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 串行化写操作，gorilla 连接不支持并发写。
type connection struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *connection) send(msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[voice] write %s failed: %v", msgType, err)
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[voice] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	go pingLoop(ctx, c)
	go forwardEvents(ctx, c, events)

	c.send("connected", session.Snapshot())

	// 断开时停止录音，避免设备一直被占用
	defer func() {
		if err := session.StopRecording(); err != nil && !errors.Is(err, rehearsal.ErrNotVoiceMode) {
			log.Printf("[voice] stop on disconnect: %v", err)
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[voice] read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if messageType == websocket.BinaryMessage {
			h.pushAudio(c, session, payload)
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		h.handleMessage(ctx, c, session, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, session *rehearsal.Session, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		if err := session.StartRecording(ctx); err != nil {
			c.sendError(err.Error())
		}
	case "stop":
		if err := session.StopRecording(); err != nil {
			c.sendError(err.Error())
		}
	case "audio":
		var audio AudioMessage
		if err := json.Unmarshal(msg.Data, &audio); err != nil {
			c.sendError("invalid audio payload")
			return
		}
		h.pushAudio(c, session, audio.AudioData)
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		if _, err := session.SubmitUserMessage(text.Text); err != nil {
			c.sendError(err.Error())
		}
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) pushAudio(c *connection, session *rehearsal.Session, chunk []byte) {
	if err := session.PushAudio(chunk); err != nil {
		c.sendError(err.Error())
	}
}

// forwardEvents 把会话事件转成 WebSocket 消息。
func forwardEvents(ctx context.Context, c *connection, events <-chan rehearsal.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			switch event.Type {
			case rehearsal.EventLevel:
				c.send("level", map[string]float64{"level": event.Level})
			case rehearsal.EventEnded:
				c.send("ended", event.Report)
			default:
				c.send("state", event.Snapshot)
			}
		}
	}
}

func pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Printf("[voice] ping failed: %v", err)
				return
			}
		}
	}
}
