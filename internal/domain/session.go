// Package domain contains core domain types for interview sessions.
package domain

import (
	"time"
)

// Phase is the coarse stage of an interview session.
type Phase string

const (
	// PhaseIntro is the rapport-setting stage before the first main question.
	PhaseIntro Phase = "INTRO"
	// PhaseAskingMain means the current question is a predefined main question.
	PhaseAskingMain Phase = "ASKING_MAIN"
	// PhaseAwaitingFollowUp means the current question is the head of the follow-up queue.
	PhaseAwaitingFollowUp Phase = "AWAITING_FOLLOWUP"
	// PhaseComplete is terminal: no question is ever asked again.
	PhaseComplete Phase = "COMPLETE"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIntro, PhaseAskingMain, PhaseAwaitingFollowUp, PhaseComplete:
		return true
	}
	return false
}

// Session holds the server-authoritative state of one interview.
type Session struct {
	ID                  string    `json:"session_id"`
	Variant             string    `json:"variant,omitempty"`
	Phase               Phase     `json:"phase"`
	Step                int       `json:"step"`
	PredefinedQuestions []string  `json:"predefined_questions"`
	BackgroundCount     int       `json:"background_count"`
	QuestionIndex       int       `json:"question_index"`
	FollowUpQueue       []string  `json:"follow_up_queue"`
	FollowUpDepth       int       `json:"follow_up_depth"`
	AskedFollowUps      []string  `json:"asked_follow_ups"`
	History             []Turn    `json:"history"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewSession returns a fresh session in the INTRO phase.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Phase:     PhaseIntro,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew returns true if the session has never accepted a turn or been given questions.
func (s *Session) IsNew() bool {
	return s.Step == 0 && len(s.PredefinedQuestions) == 0
}

// CurrentQuestion returns the question the subject is expected to answer next.
// It is the head of the follow-up queue when probing, otherwise the current
// main question, and empty once the interview is complete.
func (s *Session) CurrentQuestion() string {
	if s.Phase == PhaseComplete {
		return ""
	}
	if len(s.FollowUpQueue) > 0 {
		return s.FollowUpQueue[0]
	}
	return s.MainQuestion()
}

// MainQuestion returns the predefined question at QuestionIndex, or empty if out of range.
func (s *Session) MainQuestion() string {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.PredefinedQuestions) {
		return ""
	}
	return s.PredefinedQuestions[s.QuestionIndex]
}

// IsFinalQuestion is true iff the last main question is current and no follow-ups are pending.
func (s *Session) IsFinalQuestion() bool {
	if s.Phase == PhaseComplete || len(s.PredefinedQuestions) == 0 {
		return false
	}
	return s.QuestionIndex == len(s.PredefinedQuestions)-1 && len(s.FollowUpQueue) == 0
}

// IsBackgroundQuestion reports whether the current main question is a warm-up question.
func (s *Session) IsBackgroundQuestion() bool {
	return s.QuestionIndex < s.BackgroundCount
}

// RecordTurn appends a turn to the history and advances the step counter.
func (s *Session) RecordTurn(turn Turn) {
	s.History = append(s.History, turn)
	s.Step++
	s.UpdatedAt = turn.Timestamp
}

// Exchanges returns the question/answer pairs recorded for the current main question,
// oldest first.
func (s *Session) Exchanges() []Exchange {
	var out []Exchange
	for i := len(s.History) - 1; i >= 0; i-- {
		t := s.History[i]
		if t.QuestionIndex != s.QuestionIndex || (t.Kind != TurnMain && t.Kind != TurnFollowUp) {
			break
		}
		out = append(out, Exchange{Question: t.Question, Answer: t.Answer})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.PredefinedQuestions = append([]string(nil), s.PredefinedQuestions...)
	c.FollowUpQueue = append([]string(nil), s.FollowUpQueue...)
	c.AskedFollowUps = append([]string(nil), s.AskedFollowUps...)
	if s.History != nil {
		c.History = make([]Turn, len(s.History))
		for i, t := range s.History {
			c.History[i] = t.clone()
		}
	}
	return &c
}
