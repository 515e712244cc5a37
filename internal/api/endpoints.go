package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/interview-probe/internal/domain"
	"github.com/ashureev/interview-probe/internal/interview"
)

const healthCheckTimeout = 5 * time.Second

// ListQuestions handles GET /api/questions.
func (h *Handler) ListQuestions(w http.ResponseWriter, _ *http.Request) {
	corpus := h.svc.Corpus()
	JSON(w, http.StatusOK, map[string]any{
		"variants":            corpus.VariantNames(),
		"defaultVariant":      h.cfg.Interview.DefaultVariant,
		"backgroundQuestions": corpus.Background,
	})
}

// GetQuestions handles GET /api/questions/{variant}.
func (h *Handler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	variant := chi.URLParam(r, "variant")
	battery, err := h.svc.Corpus().Battery(variant)
	if err != nil {
		Error(w, http.StatusNotFound, "unknown variant")
		return
	}
	JSON(w, http.StatusOK, battery)
}

// GetConfig handles GET /api/config.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	opts := h.svc.Controller().Options()
	JSON(w, http.StatusOK, map[string]any{
		"maxFollowUpDepth":     opts.MaxFollowUpDepth,
		"maxFollowUpsPerRound": opts.MaxFollowUpsPerRound,
		"auditTimeout":         opts.AuditTimeout.String(),
		"failurePolicy":        opts.FailurePolicy,
		"judgeBackend":         h.judgeName,
		"sessionStore":         h.cfg.SessionStore,
		"defaultVariant":       h.cfg.Interview.DefaultVariant,
		"variants":             h.svc.Corpus().VariantNames(),
		"maxMessageLength":     h.cfg.HTTP.MaxMessageLength,
		"conversationLog":      h.cfg.ConversationLog.Enabled || h.cfg.ConversationLog.GlobalEnabled,
		"piiRedaction":         h.cfg.ConversationLog.RedactPII,
	})
}

type sessionSnapshot struct {
	*domain.Session
	CurrentQuestion *string `json:"current_question"`
	IsFinalQuestion bool    `json:"is_final_question"`
}

// GetSession handles GET /api/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !sessionIDRe.MatchString(id) {
		Error(w, http.StatusBadRequest, "sessionId: invalid")
		return
	}
	sess, err := h.svc.Snapshot(r.Context(), id)
	if errors.Is(err, interview.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("session snapshot failed", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	snap := sessionSnapshot{Session: sess, IsFinalQuestion: sess.IsFinalQuestion()}
	if sess.Phase != domain.PhaseComplete {
		q := sess.CurrentQuestion()
		snap.CurrentQuestion = &q
	}
	JSON(w, http.StatusOK, snap)
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

// ResetSession handles POST /api/reset. Only the named session is discarded.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.HTTP.MaxRequestBodySize)
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !sessionIDRe.MatchString(req.SessionID) {
		Error(w, http.StatusBadRequest, "sessionId: invalid")
		return
	}

	err := h.svc.Reset(r.Context(), req.SessionID)
	if errors.Is(err, interview.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		status, msg := h.errorStatus(err, req.SessionID)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Conversation reset",
		"session_id": req.SessionID,
	})
}

// Health handles GET /api/health: the session store and, if remote, the judge.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	code := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("health check failed", "component", "store", "error", err)
		checks["store"] = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if h.judgeHealth != nil {
		if err := h.judgeHealth.Health(ctx); err != nil {
			// Judge outages degrade verdicts, not availability.
			h.logger.Warn("health check failed", "component", "judge", "error", err)
			checks["judge"] = "unreachable"
			status = "degraded"
		} else {
			checks["judge"] = "ok"
		}
	}

	JSON(w, code, map[string]any{"status": status, "checks": checks})
}
