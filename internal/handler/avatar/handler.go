package avatar

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/pkg/utils"
)

// Handler 约会对象列表的HTTP处理器
type Handler struct {
	avatars avatar.Store
}

// New 创建avatar处理器
func New(avatars avatar.Store) *Handler {
	return &Handler{avatars: avatars}
}

// RegisterRoutes 注册avatar相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/avatars", h.handleListAvatars)
	r.Get("/avatars/{avatarID}", h.handleGetAvatar)
}

func (h *Handler) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.avatars.List())
}

func (h *Handler) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.avatars.FindByID(chi.URLParam(r, "avatarID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "avatar not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
