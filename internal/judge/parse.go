package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/interview-probe/internal/domain"
)

var errMalformedVerdict = errors.New("malformed verdict")

type verdictPayload struct {
	ShouldProceed     *bool    `json:"shouldProceed"`
	Confidence        float64  `json:"confidence"`
	Reason            string   `json:"reason"`
	GapsIdentified    []string `json:"gapsIdentified"`
	FollowUpQuestions []string `json:"followUpQuestions"`
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseVerdict decodes a judge's JSON verdict.
func parseVerdict(text string) (domain.AuditResult, error) {
	var p verdictPayload
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &p); err != nil {
		return domain.AuditResult{}, fmt.Errorf("%w: %w", errMalformedVerdict, err)
	}
	if p.ShouldProceed == nil {
		return domain.AuditResult{}, fmt.Errorf("%w: missing shouldProceed", errMalformedVerdict)
	}
	gaps := p.GapsIdentified
	if gaps == nil {
		gaps = []string{}
	}
	return domain.AuditResult{
		ShouldProceed:  *p.ShouldProceed,
		Confidence:     domain.ClampConfidence(p.Confidence),
		Reason:         strings.TrimSpace(p.Reason),
		GapsIdentified: gaps,
	}, nil
}

// parseFollowUps decodes {"followUpQuestions": [...]} or a bare JSON array.
func parseFollowUps(text string) ([]string, error) {
	body := stripCodeFence(text)
	var list []string
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		return list, nil
	}
	var p verdictPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedVerdict, err)
	}
	return p.FollowUpQuestions, nil
}
