package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/ashureev/interview-probe/internal/domain"
	"github.com/ashureev/interview-probe/internal/questions"
	"github.com/ashureev/interview-probe/internal/store"
	"github.com/ashureev/interview-probe/internal/transcript"
)

// ErrSessionNotFound is returned by Snapshot for a session the server has never seen.
var ErrSessionNotFound = errors.New("session not found")

// RedactionState is the per-session placeholder bookkeeping of a PII redactor.
type RedactionState interface {
	Counts(sessionID string) map[string]int
	Forget(sessionIDs ...string)
}

// TurnRequest is one validated chat turn. Every field other than SessionID and
// Message is a client hint, used only to rebuild a session the server has lost.
type TurnRequest struct {
	SessionID           string
	Message             string
	ClientStep          int
	CurrentQuestion     string
	PredefinedQuestions []string
	FollowUpMode        bool
	IsFinalQuestion     bool
	Variant             string
	Channel             string
}

// TurnResult is the outcome of one accepted turn.
type TurnResult struct {
	Session  *domain.Session
	Decision Decision
	Reply    string
}

// ServiceDeps wires the Service.
type ServiceDeps struct {
	Repo           store.Repository
	Locker         *store.SessionLocker
	Controller     *Controller
	Composer       *Composer
	Corpus         *questions.Corpus
	DefaultVariant string
	Transcript     transcript.ConversationLogger
	Redaction      RedactionState
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Service runs the load, decide, save and compose cycle for chat turns.
type Service struct {
	repo           store.Repository
	locker         *store.SessionLocker
	controller     *Controller
	composer       *Composer
	corpus         *questions.Corpus
	defaultVariant string
	log            transcript.ConversationLogger
	redaction      RedactionState
	clock          clock.Clock
	logger         *slog.Logger
}

// NewService creates a Service. Repo, Controller and Corpus are required.
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		repo:           deps.Repo,
		locker:         deps.Locker,
		controller:     deps.Controller,
		composer:       deps.Composer,
		corpus:         deps.Corpus,
		defaultVariant: deps.DefaultVariant,
		log:            deps.Transcript,
		redaction:      deps.Redaction,
		clock:          deps.Clock,
		logger:         deps.Logger,
	}
	if s.locker == nil {
		s.locker = store.NewSessionLocker()
	}
	if s.composer == nil {
		s.composer = NewComposer()
	}
	if s.log == nil {
		s.log = transcript.NoopLogger{}
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Controller returns the controller driving this service.
func (s *Service) Controller() *Controller {
	return s.controller
}

// Corpus returns the question corpus.
func (s *Service) Corpus() *questions.Corpus {
	return s.corpus
}

// Turn accepts one user message. Turns for the same session are serialised;
// once the lock is held the turn runs to completion even if ctx is cancelled.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	unlock, err := s.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)

	sess, err := s.repo.Load(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.IsNew() {
		if err := s.initialise(sess, req); err != nil {
			return nil, err
		}
	}

	decision, err := s.controller.Advance(ctx, sess, req.Message, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("advance session: %w", err)
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	reply := s.composer.Compose(ComposeInput{SessionID: sess.ID, Decision: decision})
	s.record(req, sess, decision, reply)

	s.logger.Debug("turn accepted",
		"session_id", sess.ID,
		"step", sess.Step,
		"phase", sess.Phase,
		"question_completed", decision.QuestionCompleted)

	return &TurnResult{Session: sess.Clone(), Decision: decision, Reply: reply}, nil
}

// Reset discards a session so the next turn with its ID starts a new
// interview. It waits for any in-flight turn of that session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)

	existed, err := s.repo.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if s.redaction != nil {
		s.redaction.Forget(sessionID)
	}
	if !existed {
		return ErrSessionNotFound
	}
	s.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// Snapshot returns the stored session, or ErrSessionNotFound.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.IsNew() {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// initialise fixes the question list of a session the server has no record of,
// and rebuilds its position when the client reports an interview in progress.
func (s *Service) initialise(sess *domain.Session, req TurnRequest) error {
	variant := req.Variant
	if variant == "" {
		variant = s.defaultVariant
	}

	qs := cleanQuestions(req.PredefinedQuestions)
	if len(qs) == 0 {
		battery, err := s.corpus.Battery(variant)
		if err != nil {
			return err
		}
		qs = battery.Questions
		sess.BackgroundCount = len(battery.Background)
	} else {
		sess.BackgroundCount = s.corpus.LeadingBackground(qs)
	}
	sess.Variant = variant
	sess.PredefinedQuestions = qs

	if req.ClientStep > 0 {
		s.rehydrate(sess, req)
	}
	return nil
}

func (s *Service) rehydrate(sess *domain.Session, req TurnRequest) {
	now := s.clock.Now()
	for range req.ClientStep {
		sess.RecordTurn(domain.Turn{
			ID:            s.controller.newID(),
			Kind:          domain.TurnRehydrated,
			QuestionIndex: -1,
			Timestamp:     now,
		})
	}

	// The greeting turn is the only one that leaves a session in INTRO.
	if req.ClientStep == 1 {
		s.logger.Info("session rehydrated", "session_id", sess.ID, "step", sess.Step, "phase", sess.Phase)
		return
	}

	current := strings.TrimSpace(req.CurrentQuestion)
	sess.Phase = domain.PhaseAskingMain
	if idx := slices.Index(sess.PredefinedQuestions, current); idx >= 0 {
		sess.QuestionIndex = idx
	} else if current != "" && req.FollowUpMode && req.IsFinalQuestion {
		sess.QuestionIndex = len(sess.PredefinedQuestions) - 1
		if !sess.IsBackgroundQuestion() && s.controller.Options().MaxFollowUpDepth > 0 {
			sess.Phase = domain.PhaseAwaitingFollowUp
			sess.FollowUpQueue = []string{current}
			sess.AskedFollowUps = []string{current}
			sess.FollowUpDepth = 1
		}
	} else {
		sess.QuestionIndex = 0
		s.logger.Warn("could not place rehydrated session, restarting questions",
			"session_id", sess.ID,
			"client_step", req.ClientStep,
			"current_question", current)
	}

	s.logger.Info("session rehydrated",
		"session_id", sess.ID,
		"step", sess.Step,
		"phase", sess.Phase,
		"question_index", sess.QuestionIndex)
}

func (s *Service) record(req TurnRequest, sess *domain.Session, d Decision, reply string) {
	channel := req.Channel
	if channel == "" {
		channel = "chat_http"
	}

	inMeta := map[string]any{"question": d.Answered}
	if d.Audit != nil {
		inMeta["should_proceed"] = d.Audit.ShouldProceed
		inMeta["confidence"] = d.Audit.Confidence
		inMeta["gaps"] = d.Audit.GapsIdentified
		inMeta["degraded"] = d.Audit.Degraded
	}
	s.log.Log(transcript.ConversationLogEvent{
		SessionID:  sess.ID,
		Step:       d.Step,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  transcript.EventUserMessage,
		Phase:      string(d.PrevPhase),
		ContentRaw: req.Message,
		Meta:       inMeta,
	})

	outMeta := map[string]any{
		"question_completed": d.QuestionCompleted,
		"is_final_question":  d.IsFinalQuestion,
	}
	if len(d.FollowUps) > 0 {
		outMeta["follow_up_questions"] = d.FollowUps
	}
	if d.Forced {
		outMeta["forced"] = true
	}
	s.log.Log(transcript.ConversationLogEvent{
		SessionID:  sess.ID,
		Step:       d.Step,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  transcript.EventBotReply,
		Phase:      string(d.Phase),
		ContentRaw: reply,
		Meta:       outMeta,
	})

	if d.Phase != domain.PhaseComplete {
		return
	}
	if d.PrevPhase != domain.PhaseComplete {
		meta := map[string]any{
			"variant":   sess.Variant,
			"questions": len(sess.PredefinedQuestions),
			"turns":     len(sess.History),
		}
		if s.redaction != nil {
			if counts := s.redaction.Counts(sess.ID); len(counts) > 0 {
				meta["redactions"] = counts
			}
		}
		s.log.Log(transcript.ConversationLogEvent{
			SessionID:  sess.ID,
			Step:       sess.Step,
			Channel:    channel,
			Direction:  "internal",
			EventType:  transcript.EventSessionComplete,
			Phase:      string(sess.Phase),
			ContentRaw: formatTranscript(sess),
			Meta:       meta,
		})
	}
	// Closing turns after completion are redacted too, so forget on every one.
	if s.redaction != nil {
		s.redaction.Forget(sess.ID)
	}
}

// ForgetSessions drops redaction state for sessions removed from the store.
func (s *Service) ForgetSessions(ids []string) {
	if s.redaction != nil && len(ids) > 0 {
		s.redaction.Forget(ids...)
	}
}

// formatTranscript renders the answered questions of a session as Q/A lines.
func formatTranscript(sess *domain.Session) string {
	var b strings.Builder
	for _, t := range sess.History {
		if t.Kind != domain.TurnMain && t.Kind != domain.TurnFollowUp {
			continue
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Question, t.Answer)
	}
	return b.String()
}

func cleanQuestions(qs []string) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
