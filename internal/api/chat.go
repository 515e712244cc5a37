package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/interview-probe/internal/domain"
	"github.com/ashureev/interview-probe/internal/interview"
	"github.com/ashureev/interview-probe/internal/questions"
	"github.com/ashureev/interview-probe/internal/store"
)

const (
	maxClientStep          = 1000
	maxPredefinedQuestions = 100
	maxQuestionLength      = 1000
)

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ChatRequest is one chat turn as sent by the client. Only Message and
// SessionID are authoritative; the rest are hints for rebuilding a lost session.
type ChatRequest struct {
	Message             string   `json:"message"`
	Step                int      `json:"step"`
	QuestionMode        bool     `json:"questionMode"`
	CurrentQuestion     *string  `json:"currentQuestion"`
	PredefinedQuestions []string `json:"predefinedQuestions"`
	IsFinalQuestionFlag bool     `json:"isFinalQuestionFlag"`
	IsFinalQuestion     bool     `json:"isFinalQuestion"`
	FollowUpMode        bool     `json:"followUpMode"`
	SessionID           string   `json:"sessionId"`
	Variant             string   `json:"variant,omitempty"`
}

// ChatResponse is the reply to one accepted turn.
type ChatResponse struct {
	BotResponse         string              `json:"bot_response"`
	Step                int                 `json:"step"`
	QuestionCompleted   bool                `json:"question_completed"`
	CurrentQuestion     *string             `json:"current_question"`
	Phase               domain.Phase        `json:"phase"`
	AuditResult         *domain.AuditResult `json:"audit_result,omitempty"`
	FollowUpQuestions   []string            `json:"follow_up_questions,omitempty"`
	PredefinedQuestions []string            `json:"predefined_questions"`
	IsFinalQuestion     bool                `json:"is_final_question"`
	SessionID           string              `json:"session_id"`
}

// ValidationError is a malformed request. It never reaches the controller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// validate normalises req and checks it against the configured limits.
func (req *ChatRequest) validate(maxMessageLength int, corpus *questions.Corpus) error {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return invalid("sessionId", "is required")
	}
	if !sessionIDRe.MatchString(req.SessionID) {
		return invalid("sessionId", "must be 1-128 letters, digits, or . _ : -")
	}
	if strings.TrimSpace(req.Message) == "" {
		return invalid("message", "is required")
	}
	if maxMessageLength > 0 && utf8.RuneCountInString(req.Message) > maxMessageLength {
		return invalid("message", "exceeds %d characters", maxMessageLength)
	}
	if req.Step < 0 || req.Step > maxClientStep {
		return invalid("step", "must be between 0 and %d", maxClientStep)
	}
	if len(req.PredefinedQuestions) > maxPredefinedQuestions {
		return invalid("predefinedQuestions", "at most %d questions are allowed", maxPredefinedQuestions)
	}
	for _, q := range req.PredefinedQuestions {
		if utf8.RuneCountInString(q) > maxQuestionLength {
			return invalid("predefinedQuestions", "questions must be at most %d characters", maxQuestionLength)
		}
	}
	req.Variant = strings.TrimSpace(req.Variant)
	if req.Variant != "" && corpus != nil && !corpus.HasVariant(req.Variant) {
		return invalid("variant", "unknown variant %q", req.Variant)
	}
	return nil
}

func (req *ChatRequest) turnRequest(channel string) interview.TurnRequest {
	tr := interview.TurnRequest{
		SessionID:           req.SessionID,
		Message:             req.Message,
		ClientStep:          req.Step,
		PredefinedQuestions: req.PredefinedQuestions,
		FollowUpMode:        req.FollowUpMode,
		IsFinalQuestion:     req.IsFinalQuestionFlag || req.IsFinalQuestion,
		Variant:             req.Variant,
		Channel:             channel,
	}
	if req.CurrentQuestion != nil {
		tr.CurrentQuestion = *req.CurrentQuestion
	}
	return tr
}

// HandleChat handles POST /api/chat and POST /chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.HTTP.MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.chat(r.Context(), &req, "chat_http", chiMiddleware.GetReqID(r.Context()))
	if err != nil {
		status, msg := h.errorStatus(err, req.SessionID)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) chat(ctx context.Context, req *ChatRequest, channel, requestID string) (*ChatResponse, error) {
	if err := req.validate(h.cfg.HTTP.MaxMessageLength, h.svc.Corpus()); err != nil {
		return nil, err
	}

	h.logger.Info("chat turn",
		"session_id", req.SessionID,
		"channel", channel,
		"request_id", requestID,
		"client_step", req.Step,
		"message_length", len(req.Message))

	res, err := h.svc.Turn(ctx, req.turnRequest(channel))
	if err != nil {
		return nil, err
	}
	return newChatResponse(res), nil
}

func newChatResponse(res *interview.TurnResult) *ChatResponse {
	s, d := res.Session, res.Decision
	resp := &ChatResponse{
		BotResponse:         res.Reply,
		Step:                s.Step,
		QuestionCompleted:   d.QuestionCompleted,
		Phase:               s.Phase,
		AuditResult:         d.Audit,
		FollowUpQuestions:   d.FollowUps,
		PredefinedQuestions: s.PredefinedQuestions,
		IsFinalQuestion:     s.IsFinalQuestion(),
		SessionID:           s.ID,
	}
	if s.Phase != domain.PhaseComplete {
		q := s.CurrentQuestion()
		resp.CurrentQuestion = &q
	}
	return resp
}

// errorStatus maps a chat error onto an HTTP status and client-facing message.
func (h *Handler) errorStatus(err error, sessionID string) (int, string) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, questions.ErrUnknownVariant):
		return http.StatusBadRequest, "variant: unknown variant"
	case errors.Is(err, store.ErrStaleSession):
		h.logger.Warn("stale session write rejected", "session_id", sessionID, "error", err)
		return http.StatusConflict, "session was updated concurrently, please retry"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		return http.StatusInternalServerError, "internal error"
	}
}
