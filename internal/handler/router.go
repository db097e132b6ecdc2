package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/date-rehearsal/backend/internal/config"
	avatarHandler "github.com/zhouzirui/date-rehearsal/backend/internal/handler/avatar"
	emotionHandler "github.com/zhouzirui/date-rehearsal/backend/internal/handler/emotion"
	sessionHandler "github.com/zhouzirui/date-rehearsal/backend/internal/handler/session"
	voiceHandler "github.com/zhouzirui/date-rehearsal/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/date-rehearsal/backend/internal/middleware"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/rehearsal"
	"github.com/zhouzirui/date-rehearsal/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(avatars avatar.Store, sessions *rehearsal.Manager, emotionCfg config.EmotionConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":         "ok",
				"emotionBackend": emotionCfg.Backend,
				"credentials":    emotionCfg.HasCredentials(),
			})
		})

		avatarHandler.New(avatars).RegisterRoutes(api)
		sessionHandler.New(sessions).RegisterRoutes(api)
		voiceHandler.NewWebSocketHandler(sessions).RegisterRoutes(api)
		emotionHandler.NewProxyHandler(emotionCfg).RegisterRoutes(api)
	})

	return r
}
