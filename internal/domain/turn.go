package domain

import (
	"time"
)

// TurnKind classifies what a recorded turn was answering.
type TurnKind string

const (
	TurnIntro      TurnKind = "intro"
	TurnMain       TurnKind = "main"
	TurnFollowUp   TurnKind = "follow_up"
	TurnClosing    TurnKind = "closing"
	TurnRehydrated TurnKind = "rehydrated"
)

// Turn is one accepted user message and the question it answered.
type Turn struct {
	ID            string       `json:"id"`
	Kind          TurnKind     `json:"kind"`
	QuestionIndex int          `json:"question_index"`
	Question      string       `json:"question"`
	Answer        string       `json:"answer"`
	Audit         *AuditResult `json:"audit_result,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

func (t Turn) clone() Turn {
	if t.Audit != nil {
		a := t.Audit.Clone()
		t.Audit = &a
	}
	return t
}

// Exchange is a question paired with the subject's answer.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AuditResult is the sufficiency verdict for a single answer.
type AuditResult struct {
	ShouldProceed  bool     `json:"shouldProceed"`
	Confidence     float64  `json:"confidence"`
	Reason         string   `json:"reason"`
	GapsIdentified []string `json:"gapsIdentified"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// Clone returns a copy that shares no slices with a.
func (a AuditResult) Clone() AuditResult {
	a.GapsIdentified = append([]string(nil), a.GapsIdentified...)
	return a
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
