// Package api provides HTTP handlers for the interview API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/interview-probe/internal/config"
	"github.com/ashureev/interview-probe/internal/interview"
	"github.com/ashureev/interview-probe/internal/judge"
	"github.com/ashureev/interview-probe/internal/middleware"
	"github.com/ashureev/interview-probe/internal/store"
)

// Deps wires a Handler.
type Deps struct {
	Service *interview.Service
	Repo    store.Repository
	Config  *config.Config
	// JudgeName is reported by /api/config.
	JudgeName string
	// JudgeHealth is checked by /api/health when the judge is remote.
	JudgeHealth judge.HealthChecker
	Limiter     *middleware.RateLimiter
	Logger      *slog.Logger
}

// Handler serves the chat endpoints and their supporting routes.
type Handler struct {
	svc         *interview.Service
	repo        store.Repository
	cfg         *config.Config
	judgeName   string
	judgeHealth judge.HealthChecker
	limiter     *middleware.RateLimiter
	ownLimiter  bool
	logger      *slog.Logger
}

// NewHandler creates a Handler. A limiter is created from cfg when none is given.
func NewHandler(deps Deps) *Handler {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Handler{
		svc:         deps.Service,
		repo:        deps.Repo,
		cfg:         cfg,
		judgeName:   deps.JudgeName,
		judgeHealth: deps.JudgeHealth,
		limiter:     deps.Limiter,
		logger:      deps.Logger,
	}
	if h.limiter == nil {
		h.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration, nil)
		h.ownLimiter = true
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Close stops the limiter if the handler created it.
func (h *Handler) Close() {
	if h.ownLimiter {
		h.limiter.Stop()
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
