// Package privacy masks personally identifying details in interview text.
package privacy

import (
	"fmt"
	"regexp"
	"sync"
)

// Redactor replaces PII in text with placeholders.
type Redactor interface {
	Redact(sessionID, text string) string
}

type piiPattern struct {
	category string
	re       *regexp.Regexp
}

// Order matters: earlier patterns claim text before later ones see it.
var piiPatterns = []piiPattern{
	{"Email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"URL", regexp.MustCompile(`\bhttps?://[^\s<>"]+`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CardNumber", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"Phone", regexp.MustCompile(`(?:\+?1[ .-]?)?(?:\(\d{3}\)\s?|\b\d{3}[ .-])\d{3}[ .-]\d{4}\b`)},
	{"IPAddress", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// PatternRedactor masks PII with numbered placeholders such as [Email1].
// The same value maps to the same placeholder for the life of a session.
type PatternRedactor struct {
	mu       sync.Mutex
	sessions map[string]*sessionPII
}

type sessionPII struct {
	counters     map[string]int
	placeholders map[string]string
}

// NewPatternRedactor creates a redactor with no session state.
func NewPatternRedactor() *PatternRedactor {
	return &PatternRedactor{sessions: make(map[string]*sessionPII)}
}

// Redact returns text with every detected PII value replaced. Session state is
// only created once something has been masked.
func (r *PatternRedactor) Redact(sessionID, text string) string {
	if text == "" {
		return text
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.sessions[sessionID]
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(match string) string {
			if state == nil {
				state = &sessionPII{counters: make(map[string]int), placeholders: make(map[string]string)}
				r.sessions[sessionID] = state
			}
			key := p.category + "\x00" + match
			if ph, seen := state.placeholders[key]; seen {
				return ph
			}
			state.counters[p.category]++
			ph := fmt.Sprintf("[%s%d]", p.category, state.counters[p.category])
			state.placeholders[key] = ph
			return ph
		})
	}
	return text
}

// Forget drops the placeholder tables of the given sessions.
func (r *PatternRedactor) Forget(sessionIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sessionIDs {
		delete(r.sessions, id)
	}
}

// Counts returns how many distinct values per category were masked in a session.
func (r *PatternRedactor) Counts(sessionID string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int)
	if state, ok := r.sessions[sessionID]; ok {
		for k, v := range state.counters {
			out[k] = v
		}
	}
	return out
}
