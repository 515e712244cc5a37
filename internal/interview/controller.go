// Package interview drives a session through its questions: judging each
// answer, probing thin answers, and composing the bot's reply.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/interview-probe/internal/domain"
	"github.com/ashureev/interview-probe/internal/judge"
)

// FailurePolicy decides what happens when no verdict can be obtained.
type FailurePolicy string

const (
	// FailOpen proceeds to the next question with a degraded verdict.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed re-asks the same question, consuming one probing round.
	FailClosed FailurePolicy = "fail_closed"
)

var (
	// ErrNoQuestions is returned when a session reaches the controller without questions.
	ErrNoQuestions = errors.New("session has no predefined questions")
	// ErrUnknownPhase is returned for a session in an unrecognised phase.
	ErrUnknownPhase = errors.New("unknown session phase")
)

// Options bound the controller's probing.
type Options struct {
	MaxFollowUpDepth     int
	MaxFollowUpsPerRound int
	AuditTimeout         time.Duration
	FailurePolicy        FailurePolicy
}

// DefaultOptions returns K=3, K'=1, a 15s audit timeout and fail-open.
func DefaultOptions() Options {
	return Options{
		MaxFollowUpDepth:     3,
		MaxFollowUpsPerRound: 1,
		AuditTimeout:         15 * time.Second,
		FailurePolicy:        FailOpen,
	}
}

// Decision describes what one turn did to the session.
type Decision struct {
	PrevPhase domain.Phase
	Phase     domain.Phase
	// Question is the question posed in the reply, empty for greeting and closing turns.
	Question string
	// Answered is the question the accepted message answered, if any.
	Answered          string
	Audit             *domain.AuditResult
	FollowUps         []string
	QuestionCompleted bool
	IsFinalQuestion   bool
	Forced            bool
	Reasked           bool
	Degraded          bool
	Step              int
}

// Controller is the per-turn state machine. It holds no per-session state.
type Controller struct {
	auditor   judge.Auditor
	generator judge.FollowUpGenerator
	opts      Options
	logger    *slog.Logger
	newID     func() string
}

// NewController creates a controller.
func NewController(auditor judge.Auditor, generator judge.FollowUpGenerator, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFollowUpDepth < 0 {
		opts.MaxFollowUpDepth = 0
	}
	if opts.MaxFollowUpsPerRound < 1 {
		opts.MaxFollowUpsPerRound = 1
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = DefaultOptions().AuditTimeout
	}
	if opts.FailurePolicy != FailClosed {
		opts.FailurePolicy = FailOpen
	}
	return &Controller{
		auditor:   auditor,
		generator: generator,
		opts:      opts,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Options returns the effective options.
func (c *Controller) Options() Options {
	return c.opts
}

// Advance applies one accepted user message to s. It appends exactly one turn
// and increments Step exactly once.
func (c *Controller) Advance(ctx context.Context, s *domain.Session, answer string, now time.Time) (Decision, error) {
	if len(s.PredefinedQuestions) == 0 {
		return Decision{}, ErrNoQuestions
	}

	d := Decision{PrevPhase: s.Phase}
	turn := domain.Turn{
		ID:            c.newID(),
		QuestionIndex: s.QuestionIndex,
		Answer:        answer,
		Timestamp:     now,
	}

	switch s.Phase {
	case domain.PhaseComplete:
		turn.Kind = domain.TurnClosing
		s.RecordTurn(turn)
	case domain.PhaseIntro:
		turn.Kind = domain.TurnIntro
		if s.Step > 0 {
			s.Phase = domain.PhaseAskingMain
			s.QuestionIndex = 0
		}
		s.RecordTurn(turn)
		if s.Phase == domain.PhaseAskingMain {
			d.Question = s.CurrentQuestion()
		}
	case domain.PhaseAskingMain, domain.PhaseAwaitingFollowUp:
		c.judgeAnswer(ctx, s, &d, turn)
		d.Question = s.CurrentQuestion()
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPhase, s.Phase)
	}

	d.Phase = s.Phase
	d.IsFinalQuestion = s.IsFinalQuestion()
	d.Step = s.Step
	return d, nil
}

// judgeAnswer audits the answer and, when it falls short, generates the next
// follow-ups. Both share one AuditTimeout deadline.
func (c *Controller) judgeAnswer(ctx context.Context, s *domain.Session, d *Decision, turn domain.Turn) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.AuditTimeout)
	defer cancel()

	inFollowUp := s.Phase == domain.PhaseAwaitingFollowUp && len(s.FollowUpQueue) > 0
	d.Answered = s.CurrentQuestion()
	turn.Question = d.Answered
	turn.Kind = domain.TurnMain
	if inFollowUp {
		turn.Kind = domain.TurnFollowUp
	}

	prior := s.Exchanges()
	verdict, err := c.audit(ctx, judge.AuditInput{
		Question:     d.Answered,
		MainQuestion: s.MainQuestion(),
		Answer:       turn.Answer,
		Prior:        prior,
		Background:   s.IsBackgroundQuestion(),
	})
	if err != nil {
		verdict = c.degradedVerdict(err)
		d.Degraded = true
		c.logger.Warn("judge unavailable, applying failure policy",
			"session_id", s.ID,
			"step", s.Step,
			"policy", c.opts.FailurePolicy,
			"error", err)
	}

	attached := verdict.Clone()
	turn.Audit = &attached
	d.Audit = &verdict
	s.RecordTurn(turn)

	if inFollowUp {
		s.FollowUpQueue = s.FollowUpQueue[1:]
	}
	maxDepth := c.maxDepth(s)

	switch {
	case d.Degraded && c.opts.FailurePolicy == FailClosed && s.FollowUpDepth < maxDepth:
		c.reask(s, d)
	case len(s.FollowUpQueue) > 0:
		s.Phase = domain.PhaseAwaitingFollowUp
	case verdict.ShouldProceed:
		c.advanceMain(s, d)
	case s.FollowUpDepth < maxDepth:
		c.probe(ctx, s, d, turn.Answer, verdict.GapsIdentified)
	default:
		d.Forced = true
		c.logger.Info("follow-up depth exhausted, advancing",
			"session_id", s.ID,
			"question_index", s.QuestionIndex,
			"depth", s.FollowUpDepth)
		c.advanceMain(s, d)
	}
}

func (c *Controller) audit(ctx context.Context, in judge.AuditInput) (domain.AuditResult, error) {
	if c.auditor == nil {
		return domain.AuditResult{}, judge.ErrAuditUnavailable
	}
	result, err := c.auditor.Audit(ctx, in)
	if err != nil {
		return domain.AuditResult{}, fmt.Errorf("%w: %w", judge.Classify(err), err)
	}
	result.Confidence = domain.ClampConfidence(result.Confidence)
	if result.GapsIdentified == nil {
		result.GapsIdentified = []string{}
	}
	return result, nil
}

func (c *Controller) degradedVerdict(err error) domain.AuditResult {
	cause := "unavailable"
	if errors.Is(err, judge.ErrAuditTimeout) {
		cause = "timed out"
	}
	r := domain.AuditResult{
		Confidence:     0,
		GapsIdentified: []string{},
		Degraded:       true,
	}
	if c.opts.FailurePolicy == FailClosed {
		r.ShouldProceed = false
		r.Reason = fmt.Sprintf("Sufficiency judgment %s; asking again.", cause)
	} else {
		r.ShouldProceed = true
		r.Reason = fmt.Sprintf("Sufficiency judgment %s; proceeding without audit.", cause)
	}
	return r
}

// probe starts a new follow-up round, or advances if no follow-up can be produced.
func (c *Controller) probe(ctx context.Context, s *domain.Session, d *Decision, answer string, gaps []string) {
	followUps, err := c.generate(ctx, judge.FollowUpInput{
		MainQuestion: s.MainQuestion(),
		Question:     d.Answered,
		Answer:       answer,
		Gaps:         gaps,
		AlreadyAsked: s.AskedFollowUps,
		Max:          c.opts.MaxFollowUpsPerRound,
	})
	if err != nil {
		d.Degraded = true
		c.logger.Warn("follow-up generation failed, applying failure policy",
			"session_id", s.ID,
			"step", s.Step,
			"policy", c.opts.FailurePolicy,
			"error", err)
		if c.opts.FailurePolicy == FailClosed {
			c.reask(s, d)
			return
		}
		d.Forced = true
		c.advanceMain(s, d)
		return
	}

	s.FollowUpQueue = followUps
	s.AskedFollowUps = append(s.AskedFollowUps, followUps...)
	s.FollowUpDepth++
	s.Phase = domain.PhaseAwaitingFollowUp
	d.FollowUps = append([]string(nil), followUps...)
}

func (c *Controller) generate(ctx context.Context, in judge.FollowUpInput) ([]string, error) {
	if c.generator == nil {
		return nil, judge.ErrFollowUpGeneration
	}
	out, err := c.generator.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no questions returned", judge.ErrFollowUpGeneration)
	}
	if len(out) > in.Max {
		out = out[:in.Max]
	}
	return out, nil
}

// reask poses the question just answered again. It counts as a probing round.
func (c *Controller) reask(s *domain.Session, d *Decision) {
	s.FollowUpDepth++
	d.Reasked = true
	if d.Answered == s.MainQuestion() && len(s.FollowUpQueue) == 0 {
		s.Phase = domain.PhaseAskingMain
		return
	}
	s.FollowUpQueue = append([]string{d.Answered}, s.FollowUpQueue...)
	s.Phase = domain.PhaseAwaitingFollowUp
}

func (c *Controller) advanceMain(s *domain.Session, d *Decision) {
	s.QuestionIndex++
	s.FollowUpQueue = nil
	s.FollowUpDepth = 0
	s.AskedFollowUps = nil
	d.QuestionCompleted = true
	if s.QuestionIndex >= len(s.PredefinedQuestions) {
		s.QuestionIndex = len(s.PredefinedQuestions)
		s.Phase = domain.PhaseComplete
		return
	}
	s.Phase = domain.PhaseAskingMain
}

func (c *Controller) maxDepth(s *domain.Session) int {
	if s.IsBackgroundQuestion() {
		return 0
	}
	return c.opts.MaxFollowUpDepth
}
