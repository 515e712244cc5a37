package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ashureev/interview-probe/internal/domain"
)

// HeuristicConfig holds the thresholds of the rule-based auditor.
// MinConcrete counts the example, timeframe, entity and outcome signals.
type HeuristicConfig struct {
	MinWords     int
	MinSentences int
	MinConcrete  int
}

// DefaultHeuristicConfig returns the thresholds used when none are configured.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{MinWords: 25, MinSentences: 2, MinConcrete: 2}
}

// HeuristicAuditor scores answers with deterministic text signals.
// It never fails except on a cancelled context.
type HeuristicAuditor struct {
	cfg HeuristicConfig
}

// NewHeuristicAuditor creates a rule-based auditor.
func NewHeuristicAuditor(cfg HeuristicConfig) *HeuristicAuditor {
	def := DefaultHeuristicConfig()
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.MinSentences <= 0 {
		cfg.MinSentences = def.MinSentences
	}
	if cfg.MinConcrete <= 0 {
		cfg.MinConcrete = def.MinConcrete
	}
	return &HeuristicAuditor{cfg: cfg}
}

var (
	noExperienceRe  = regexp.MustCompile(`(?i)\b(i( have|'ve) never|i haven'?t (ever )?(used|done|tried|had)|i have not|i don'?t have (any )?(experience|examples?)|i do not have (any )?(experience|examples?)|never (used|tried|done|had)|no experience|not applicable|does ?n'?t apply to me|n/a)\b`)
	exampleRe       = regexp.MustCompile(`(?i)\b(for example|for instance|one time|once|specifically|in particular|there was a time|i remember|when i|the time (i|we|that))\b`)
	timeframeRe     = regexp.MustCompile(`(?i)\b((19|20)\d{2}|yesterday|last (week|month|year|semester|summer|spring|fall|autumn|winter)|this (week|month|year|semester)|\d+ (days?|weeks?|months?|years?) ago|a (few|couple of) (days|weeks|months|years) ago|recently|(january|february|march|april|june|july|august|september|october|november|december)|(spring|summer|fall|autumn|winter) (of|break)|semester|quarter|when i was)\b`)
	outcomeRe       = regexp.MustCompile(`(?i)\b(got|received|landed|offered|offer|hired|rejected|passed|failed|ended up|turned out|result(ed)?|outcome|so i|which (led|helped|meant)|helped me|made me|lost|won|succeeded|worked out|callback|heard back|next round|second round|final round)\b`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]+(\s+|$)`)
)

// knownEntities are lower-case names that count as specific even when not capitalised.
var knownEntities = map[string]struct{}{
	"chatgpt": {}, "gpt": {}, "gemini": {}, "claude": {}, "copilot": {},
	"linkedin": {}, "indeed": {}, "handshake": {}, "glassdoor": {},
	"google": {}, "grammarly": {}, "perplexity": {}, "notion": {},
}

// nonEntities are capitalised tokens that do not name anything specific.
var nonEntities = map[string]struct{}{
	"I": {}, "I'm": {}, "I've": {}, "I'd": {}, "I'll": {}, "AI": {}, "OK": {},
}

type signals struct {
	words     int
	sentences int
	example   bool
	timeframe bool
	entity    bool
	outcome   bool
}

func (s signals) concrete() int {
	n := 0
	for _, ok := range []bool{s.example, s.timeframe, s.entity, s.outcome} {
		if ok {
			n++
		}
	}
	return n
}

// Audit judges the accumulated answer for the current main question.
func (a *HeuristicAuditor) Audit(ctx context.Context, in AuditInput) (domain.AuditResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditResult{}, fmt.Errorf("heuristic audit: %w", err)
	}

	answer := strings.TrimSpace(in.Answer)
	if isNoExperience(answer) {
		return domain.AuditResult{
			ShouldProceed:  true,
			Confidence:     0.9,
			Reason:         "Subject reports no relevant experience; probing further would not add detail.",
			GapsIdentified: []string{},
		}, nil
	}

	if in.Background {
		if countWords(answer) >= 3 {
			return domain.AuditResult{
				ShouldProceed:  true,
				Confidence:     0.8,
				Reason:         "Background question answered.",
				GapsIdentified: []string{},
			}, nil
		}
		return domain.AuditResult{
			ShouldProceed:  false,
			Confidence:     0.6,
			Reason:         "Background answer is very brief.",
			GapsIdentified: []string{GapDetail},
		}, nil
	}

	parts := make([]string, 0, len(in.Prior)+1)
	for _, ex := range in.Prior {
		parts = append(parts, ex.Answer)
	}
	parts = append(parts, answer)
	sig := analyze(strings.Join(parts, "\n"))

	var gaps []string
	if !sig.example {
		gaps = append(gaps, GapExample)
	}
	if !sig.timeframe {
		gaps = append(gaps, GapTimeframe)
	}
	if !sig.entity {
		gaps = append(gaps, GapEntity)
	}
	if !sig.outcome {
		gaps = append(gaps, GapOutcome)
	}

	enoughText := sig.words >= a.cfg.MinWords && sig.sentences >= a.cfg.MinSentences
	sufficient := enoughText && sig.concrete() >= a.cfg.MinConcrete
	score := a.score(sig)

	if sufficient {
		return domain.AuditResult{
			ShouldProceed:  true,
			Confidence:     score,
			Reason:         fmt.Sprintf("Answer has %d words and %d of 4 concrete details.", sig.words, sig.concrete()),
			GapsIdentified: []string{},
		}, nil
	}

	if !enoughText {
		gaps = append([]string{GapDetail}, gaps...)
	}
	return domain.AuditResult{
		ShouldProceed:  false,
		Confidence:     domain.ClampConfidence(1 - score),
		Reason:         fmt.Sprintf("Answer is thin: %d words, %d sentences, %d of 4 concrete details.", sig.words, sig.sentences, sig.concrete()),
		GapsIdentified: gaps,
	}, nil
}

// score is a 0..1 richness estimate: 30% length, 10% structure, 60% concrete signals.
func (a *HeuristicAuditor) score(sig signals) float64 {
	length := float64(sig.words) / float64(a.cfg.MinWords)
	if length > 1 {
		length = 1
	}
	structure := 0.0
	if sig.sentences >= a.cfg.MinSentences {
		structure = 1
	}
	return domain.ClampConfidence(0.3*length + 0.1*structure + 0.15*float64(sig.concrete()))
}

func isNoExperience(answer string) bool {
	return countWords(answer) <= 30 && noExperienceRe.MatchString(answer)
}

func analyze(text string) signals {
	return signals{
		words:     countWords(text),
		sentences: countSentences(text),
		example:   exampleRe.MatchString(text),
		timeframe: timeframeRe.MatchString(text),
		entity:    hasEntity(text),
		outcome:   outcomeRe.MatchString(text),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func countSentences(text string) int {
	n := 0
	for _, part := range sentenceSplitRe.Split(text, -1) {
		if countWords(part) > 0 {
			n++
		}
	}
	return n
}

// hasEntity looks for a capitalised word that does not open a sentence, or a known product name.
func hasEntity(text string) bool {
	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		for i, word := range strings.Fields(sentence) {
			token := strings.TrimFunc(word, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
			})
			if token == "" {
				continue
			}
			if _, ok := knownEntities[strings.ToLower(token)]; ok {
				return true
			}
			if i == 0 {
				continue
			}
			if _, skip := nonEntities[token]; skip {
				continue
			}
			if unicode.IsUpper([]rune(token)[0]) {
				return true
			}
		}
	}
	return false
}
