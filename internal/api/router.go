package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/interview-probe/internal/middleware"
)

// RegisterRoutes registers the chat and supporting routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	limited := middleware.RateLimit(h.limiter, nil)
	r.With(limited).Post("/chat", h.HandleChat)

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/chat", h.HandleChat)
		r.Get("/health", h.Health)
		r.Get("/config", h.GetConfig)
		r.Get("/questions", h.ListQuestions)
		r.Get("/questions/{variant}", h.GetQuestions)
		r.Get("/predefined_questions/{variant}", h.GetQuestions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.With(limited).Post("/reset", h.ResetSession)
	})

	r.Get("/ws/chat", h.HandleWebSocket)
}

// NewRouter builds the full HTTP router with global middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(h.cfg.CORSOrigins))

	h.RegisterRoutes(r)
	return r
}
