// Package judge decides whether an interview answer is sufficient and
// proposes follow-up questions when it is not.
package judge

import (
	"context"
	"errors"

	"github.com/ashureev/interview-probe/internal/domain"
)

var (
	// ErrAuditUnavailable means no verdict could be produced.
	ErrAuditUnavailable = errors.New("audit unavailable")
	// ErrAuditTimeout means the judge did not answer before the deadline.
	ErrAuditTimeout = errors.New("audit timed out")
	// ErrFollowUpGeneration means no usable follow-up question was produced.
	ErrFollowUpGeneration = errors.New("follow-up generation failed")
)

// Gap identifiers produced by the heuristic auditor.
const (
	GapExample   = "concrete example"
	GapTimeframe = "timeframe"
	GapEntity    = "specific tools, companies, or people"
	GapOutcome   = "outcome"
	GapDetail    = "detail"
)

// AuditInput is everything the judge sees for one answer.
type AuditInput struct {
	// Question is the question that was just answered (main or follow-up).
	Question string
	// MainQuestion is the predefined question being explored.
	MainQuestion string
	Answer       string
	// Prior holds earlier exchanges for the same main question, oldest first.
	Prior      []domain.Exchange
	Background bool
}

// FollowUpInput is everything a generator sees when asked to probe.
type FollowUpInput struct {
	MainQuestion string
	Question     string
	Answer       string
	Gaps         []string
	AlreadyAsked []string
	Max          int
}

// Auditor judges whether an answer is detailed enough to move on.
type Auditor interface {
	Audit(ctx context.Context, in AuditInput) (domain.AuditResult, error)
}

// FollowUpGenerator proposes 1..Max follow-up questions for the identified gaps.
type FollowUpGenerator interface {
	Generate(ctx context.Context, in FollowUpInput) ([]string, error)
}

// HealthChecker is implemented by judges backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Classify maps a judge error onto ErrAuditTimeout or ErrAuditUnavailable.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuditTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrAuditTimeout
	default:
		return ErrAuditUnavailable
	}
}

// applyMinConfidence downgrades a proceed verdict the judge was not sure about.
func applyMinConfidence(r domain.AuditResult, minConfidence float64) domain.AuditResult {
	r.Confidence = domain.ClampConfidence(r.Confidence)
	if r.ShouldProceed && r.Confidence < minConfidence {
		r.ShouldProceed = false
		if len(r.GapsIdentified) == 0 {
			r.GapsIdentified = []string{GapDetail}
		}
	}
	return r
}
