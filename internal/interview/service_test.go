package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/interview-probe/internal/domain"
	"github.com/ashureev/interview-probe/internal/judge"
	"github.com/ashureev/interview-probe/internal/privacy"
	"github.com/ashureev/interview-probe/internal/questions"
	"github.com/ashureev/interview-probe/internal/store"
	"github.com/ashureev/interview-probe/internal/transcript"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose init starts a worker that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// captureLog keeps events in memory, redacting them the way the file logger does.
type captureLog struct {
	mu       sync.Mutex
	redactor privacy.Redactor
	events   []transcript.ConversationLogEvent
}

func (c *captureLog) Log(e transcript.ConversationLogEvent) {
	if c.redactor != nil {
		e.ContentRaw = c.redactor.Redact(e.SessionID, e.ContentRaw)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLog) Close() error { return nil }

func (c *captureLog) Events() []transcript.ConversationLogEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.ConversationLogEvent(nil), c.events...)
}

type failingSaveRepo struct {
	*store.MemoryStore
}

func (failingSaveRepo) Save(context.Context, *domain.Session) error {
	return errors.New("disk full")
}

type serviceFixture struct {
	svc      *Service
	repo     *store.MemoryStore
	log      *captureLog
	redactor *privacy.PatternRedactor
	clock    *clock.Mock
	corpus   *questions.Corpus
}

func newServiceFixture(t *testing.T, a judge.Auditor, g judge.FollowUpGenerator, mutate func(*Options)) *serviceFixture {
	t.Helper()
	corpus, err := questions.Default()
	require.NoError(t, err)

	clk := clock.NewMock()
	clk.Set(t0)
	redactor := privacy.NewPatternRedactor()
	f := &serviceFixture{
		repo:     store.NewMemoryStore(clk),
		log:      &captureLog{redactor: redactor},
		redactor: redactor,
		clock:    clk,
		corpus:   corpus,
	}
	f.svc = NewService(ServiceDeps{
		Repo:           f.repo,
		Controller:     newTestController(a, g, mutate),
		Corpus:         corpus,
		DefaultVariant: "neutral",
		Transcript:     f.log,
		Redaction:      f.redactor,
		Clock:          clk,
		Logger:         discardLogger(),
	})
	return f
}

var threeQuestions = []string{"Q1", "Q2", "Q3"}

func turn(t *testing.T, svc *Service, req TurnRequest) *TurnResult {
	t.Helper()
	res, err := svc.Turn(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestServiceScenarioAllSufficient(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	var res *TurnResult
	for i, msg := range []string{"hi", "ready", "a1", "a2", "a3"} {
		res = turn(t, f.svc, TurnRequest{SessionID: "s-a", Message: msg, PredefinedQuestions: threeQuestions})
		assert.Equal(t, i+1, res.Session.Step)
		assert.Len(t, res.Session.History, res.Session.Step)
	}

	assert.Equal(t, domain.PhaseComplete, res.Session.Phase)
	assert.Empty(t, res.Session.CurrentQuestion())
	assert.True(t, res.Decision.QuestionCompleted)
	assert.Contains(t, res.Reply, closingMessage)

	events := f.log.Events()
	require.Len(t, events, 11)
	last := events[len(events)-1]
	assert.Equal(t, transcript.EventSessionComplete, last.EventType)
	assert.Contains(t, last.ContentRaw, "Q: Q1\nA: a1\n")
	assert.Contains(t, last.ContentRaw, "Q: Q3\nA: a3\n")

	res = turn(t, f.svc, TurnRequest{SessionID: "s-a", Message: "one more thing"})
	assert.Equal(t, 6, res.Session.Step)
	assert.Equal(t, postClosingMessage, res.Reply)
	assert.Len(t, f.log.Events(), 13)
}

func TestServiceReleasesRedactionStateOnCompletion(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
	qs := []string{"Q1"}

	turn(t, f.svc, TurnRequest{SessionID: "s-r", Message: "hi", PredefinedQuestions: qs})
	turn(t, f.svc, TurnRequest{SessionID: "s-r", Message: "ready"})
	res := turn(t, f.svc, TurnRequest{SessionID: "s-r", Message: "write to jane@example.com"})
	require.Equal(t, domain.PhaseComplete, res.Session.Phase)

	events := f.log.Events()
	last := events[len(events)-1]
	require.Equal(t, transcript.EventSessionComplete, last.EventType)
	assert.Equal(t, map[string]int{"Email": 1}, last.Meta["redactions"])
	assert.Contains(t, last.ContentRaw, "A: write to [Email1]")
	assert.Empty(t, f.redactor.Counts("s-r"))

	turn(t, f.svc, TurnRequest{SessionID: "s-r", Message: "also bob@example.com"})
	events = f.log.Events()
	assert.Equal(t, "also [Email1]", events[len(events)-2].ContentRaw)
	assert.Empty(t, f.redactor.Counts("s-r"))
}

func TestServiceForgetsEvictedSessions(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	ids := []string{"idle-1", "idle-2", "idle-3"}
	for _, id := range ids {
		turn(t, f.svc, TurnRequest{SessionID: id, Message: "hi, I am " + id + "@example.com", PredefinedQuestions: threeQuestions})
		require.Equal(t, map[string]int{"Email": 1}, f.redactor.Counts(id))
	}

	f.clock.Add(2 * time.Hour)
	evicted, err := f.repo.DeleteIdle(context.Background(), f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, evicted)

	f.svc.ForgetSessions(evicted)
	for _, id := range ids {
		assert.Empty(t, f.redactor.Counts(id))
	}
}

func TestServiceReset(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	turn(t, f.svc, TurnRequest{SessionID: "s-x", Message: "hi from x@example.com", PredefinedQuestions: threeQuestions})
	turn(t, f.svc, TurnRequest{SessionID: "s-x", Message: "ready"})
	require.NotEmpty(t, f.redactor.Counts("s-x"))

	require.NoError(t, f.svc.Reset(context.Background(), "s-x"))
	assert.Empty(t, f.redactor.Counts("s-x"))
	_, err := f.svc.Snapshot(context.Background(), "s-x")
	require.ErrorIs(t, err, ErrSessionNotFound)

	res := turn(t, f.svc, TurnRequest{SessionID: "s-x", Message: "hi again", PredefinedQuestions: threeQuestions})
	assert.Equal(t, 1, res.Session.Step)
	assert.Equal(t, domain.PhaseIntro, res.Session.Phase)

	require.ErrorIs(t, f.svc.Reset(context.Background(), "never-seen"), ErrSessionNotFound)
}

func TestServiceScenarioThinAnswer(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: thinVerdict()}, judge.NewTemplateGenerator(), nil)

	turn(t, f.svc, TurnRequest{SessionID: "s-b", Message: "hi", PredefinedQuestions: threeQuestions})
	turn(t, f.svc, TurnRequest{SessionID: "s-b", Message: "ok"})
	res := turn(t, f.svc, TurnRequest{SessionID: "s-b", Message: "I used ChatGPT once."})

	require.Len(t, res.Decision.FollowUps, 1)
	assert.Equal(t, domain.PhaseAwaitingFollowUp, res.Session.Phase)
	assert.Equal(t, res.Decision.FollowUps[0], res.Session.CurrentQuestion())
	assert.Equal(t, 1, strings.Count(res.Reply, "?"))
}

func runSession(svc *Service, id string, turns int) ([]int, []domain.Phase, error) {
	steps := make([]int, 0, turns)
	phases := make([]domain.Phase, 0, turns)
	for i := range turns {
		res, err := svc.Turn(context.Background(), TurnRequest{
			SessionID:           id,
			Message:             fmt.Sprintf("answer %d", i),
			PredefinedQuestions: threeQuestions,
		})
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, res.Session.Step)
		phases = append(phases, res.Session.Phase)
	}
	return steps, phases, nil
}

func TestServiceSessionsAreIndependent(t *testing.T) {
	const turns = 7

	solo := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
	wantSteps, wantPhases, err := runSession(solo.svc, "alone", turns)
	require.NoError(t, err)

	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
	var (
		g              errgroup.Group
		stepsA, stepsB []int
		phaseA, phaseB []domain.Phase
	)
	g.Go(func() error {
		var err error
		stepsA, phaseA, err = runSession(f.svc, "a", turns)
		return err
	})
	g.Go(func() error {
		var err error
		stepsB, phaseB, err = runSession(f.svc, "b", turns)
		return err
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, wantSteps, stepsA)
	assert.Equal(t, wantSteps, stepsB)
	assert.Equal(t, wantPhases, phaseA)
	assert.Equal(t, wantPhases, phaseB)
}

func TestServiceSerialisesSameSession(t *testing.T) {
	const n = 12
	f := newServiceFixture(t, &recordingAuditor{verdict: thinVerdict()}, &countingGenerator{}, nil)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		seen = make(map[int]bool)
	)
	for i := range n {
		g.Go(func() error {
			res, err := f.svc.Turn(context.Background(), TurnRequest{
				SessionID:           "shared",
				Message:             fmt.Sprintf("msg %d", i),
				PredefinedQuestions: threeQuestions,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[res.Session.Step] {
				return fmt.Errorf("step %d returned twice", res.Session.Step)
			}
			seen[res.Session.Step] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sess, err := f.svc.Snapshot(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, n, sess.Step)
	assert.Len(t, sess.History, n)
	assert.LessOrEqual(t, sess.FollowUpDepth, 3)
	assert.Len(t, seen, n)
}

func TestServiceLoadsCorpusBattery(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	res := turn(t, f.svc, TurnRequest{SessionID: "s-c", Message: "hi"})
	battery, err := f.corpus.Battery("neutral")
	require.NoError(t, err)
	assert.Equal(t, battery.Questions, res.Session.PredefinedQuestions)
	assert.Equal(t, len(battery.Background), res.Session.BackgroundCount)
	assert.Equal(t, "neutral", res.Session.Variant)

	res = turn(t, f.svc, TurnRequest{SessionID: "s-d", Message: "hi", Variant: "featured"})
	battery, err = f.corpus.Battery("featured")
	require.NoError(t, err)
	assert.Equal(t, battery.Questions, res.Session.PredefinedQuestions)

	supplied := append(append([]string(nil), battery.Background[:1]...), "Custom question?")
	res = turn(t, f.svc, TurnRequest{SessionID: "s-e", Message: "hi", PredefinedQuestions: supplied})
	assert.Equal(t, 1, res.Session.BackgroundCount)
}

func TestServiceRejectsUnknownVariant(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	_, err := f.svc.Turn(context.Background(), TurnRequest{SessionID: "s-x", Message: "hi", Variant: "bogus"})
	require.ErrorIs(t, err, questions.ErrUnknownVariant)

	_, err = f.svc.Snapshot(context.Background(), "s-x")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServiceIgnoresHintsForLiveSession(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)

	turn(t, f.svc, TurnRequest{SessionID: "live", Message: "hi", PredefinedQuestions: threeQuestions})
	res := turn(t, f.svc, TurnRequest{
		SessionID:           "live",
		Message:             "ok",
		ClientStep:          50,
		CurrentQuestion:     "Q3",
		PredefinedQuestions: []string{"Other"},
	})

	assert.Equal(t, 2, res.Session.Step)
	assert.Equal(t, threeQuestions, res.Session.PredefinedQuestions)
	assert.Equal(t, "Q1", res.Session.CurrentQuestion())
}

func TestServiceRehydratesLostSession(t *testing.T) {
	t.Run("main question", func(t *testing.T) {
		f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
		res := turn(t, f.svc, TurnRequest{
			SessionID:           "r1",
			Message:             "answer two",
			ClientStep:          4,
			CurrentQuestion:     "Q2",
			PredefinedQuestions: threeQuestions,
		})
		assert.Equal(t, 5, res.Session.Step)
		assert.Len(t, res.Session.History, 5)
		for _, h := range res.Session.History[:4] {
			assert.Equal(t, domain.TurnRehydrated, h.Kind)
		}
		assert.Equal(t, "Q2", res.Decision.Answered)
		assert.Equal(t, "Q3", res.Decision.Question)
		assert.True(t, res.Decision.IsFinalQuestion)
	})

	t.Run("pending follow-up on final question", func(t *testing.T) {
		auditor := &recordingAuditor{verdict: proceedVerdict()}
		f := newServiceFixture(t, auditor, &countingGenerator{}, nil)
		res := turn(t, f.svc, TurnRequest{
			SessionID:           "r2",
			Message:             "it shipped in May",
			ClientStep:          7,
			CurrentQuestion:     "What happened next?",
			PredefinedQuestions: threeQuestions,
			FollowUpMode:        true,
			IsFinalQuestion:     true,
		})
		assert.Equal(t, "What happened next?", res.Decision.Answered)
		assert.Equal(t, domain.PhaseComplete, res.Session.Phase)
		calls := auditor.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "Q3", calls[0].MainQuestion)
	})

	t.Run("unplaceable question restarts", func(t *testing.T) {
		f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
		res := turn(t, f.svc, TurnRequest{
			SessionID:           "r3",
			Message:             "answer",
			ClientStep:          3,
			CurrentQuestion:     "Something we never asked?",
			PredefinedQuestions: threeQuestions,
		})
		assert.Equal(t, "Q1", res.Decision.Answered)
		assert.Equal(t, 4, res.Session.Step)
	})

	t.Run("after greeting", func(t *testing.T) {
		f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
		res := turn(t, f.svc, TurnRequest{
			SessionID:           "r4",
			Message:             "ready",
			ClientStep:          1,
			CurrentQuestion:     "Q1",
			PredefinedQuestions: threeQuestions,
		})
		assert.Equal(t, domain.PhaseIntro, res.Decision.PrevPhase)
		assert.Equal(t, "Q1", res.Decision.Question)
		assert.Equal(t, 2, res.Session.Step)
	})
}

func TestServiceSaveFailure(t *testing.T) {
	f := newServiceFixture(t, &recordingAuditor{verdict: proceedVerdict()}, &countingGenerator{}, nil)
	f.svc.repo = failingSaveRepo{f.repo}

	_, err := f.svc.Turn(context.Background(), TurnRequest{SessionID: "s", Message: "hi", PredefinedQuestions: threeQuestions})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
	assert.Empty(t, f.log.Events())
}
