package session

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
	"github.com/zhouzirui/date-rehearsal/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler 排练会话的HTTP处理器
type Handler struct {
	sessions *rehearsal.Manager
}

// New 创建会话处理器
func New(sessions *rehearsal.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmitMessage)
	r.Post("/sessions/{sessionID}/end", h.handleEndSession)
	r.Get("/sessions/{sessionID}/feedback", h.handleFeedback)
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode     string `json:"mode"`
		AvatarID string `json:"avatarId"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, ok := chat.ParseMode(payload.Mode)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, chatservice.ErrInvalidMode.Error())
		return
	}

	session, err := h.sessions.Create(r.Context(), rehearsal.CreateOptions{
		AvatarID: payload.AvatarID,
		Mode:     mode,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("[session] created %s mode=%s avatar=%s", session.ID(), mode, payload.AvatarID)
	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

// handleSubmitMessage 提交用户消息
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := session.SubmitUserMessage(payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, message)
}

// handleEndSession 结束会话并返回反馈
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.End())
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	report, err := session.Feedback()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

// handleEvents 通过SSE推送会话快照
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	ctx := r.Context()
	log.Printf("[sse] opening event stream for session=%s", session.ID())

	snapshot := session.Snapshot()
	if err := utils.SendSSEEvent(w, flusher, string(rehearsal.EventSnapshot), rehearsal.Event{Type: rehearsal.EventSnapshot, Snapshot: &snapshot}); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing event stream for session=%s", session.ID())
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(event.Type), event); err != nil {
				log.Printf("[sse] write failed for session=%s: %v", session.ID(), err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*rehearsal.Session, bool) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	return session, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rehearsal.ErrSessionNotFound), errors.Is(err, chatservice.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chatservice.ErrAvatarNotFound), errors.Is(err, chatservice.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, chatservice.ErrInvalidState), errors.Is(err, rehearsal.ErrNotEnded):
		status = http.StatusConflict
	}
	utils.RespondError(w, status, err.Error())
}
