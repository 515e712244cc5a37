package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
)

const maxFollowUpLength = 200

var gapTemplates = map[string][]string{
	GapExample: {
		"Could you walk me through one specific time that happened?",
		"Can you describe a particular situation where that came up?",
	},
	GapTimeframe: {
		"When did that happen, roughly?",
		"About how long ago was that, and what was going on for you at the time?",
	},
	GapEntity: {
		"Which tools, companies, or people were involved?",
		"What specific tool or service did you use, and for which role?",
	},
	GapOutcome: {
		"How did that turn out in the end?",
		"What happened as a result?",
	},
	GapDetail: {
		"Could you tell me a bit more about that?",
		"What else stands out to you about that experience?",
	},
}

var genericTemplates = []string{
	"Is there anything else about that experience you'd like to add?",
	"What would you say was the most important part of that experience for you?",
}

// TemplateGenerator builds follow-ups from fixed per-gap templates.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a deterministic follow-up generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate returns up to in.Max questions, one per gap, none repeating AlreadyAsked.
func (g *TemplateGenerator) Generate(ctx context.Context, in FollowUpInput) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFollowUpGeneration, err)
	}
	limit := in.Max
	if limit <= 0 {
		limit = 1
	}

	seen := lo.SliceToMap(in.AlreadyAsked, func(q string) (string, struct{}) {
		return normalizeQuestion(q), struct{}{}
	})
	pick := func(candidates []string) (string, bool) {
		for _, c := range candidates {
			key := normalizeQuestion(c)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				return c, true
			}
		}
		return "", false
	}

	gaps := lo.Uniq(in.Gaps)
	if len(gaps) == 0 {
		gaps = []string{GapDetail}
	}

	var out []string
	for _, gap := range gaps {
		if len(out) == limit {
			break
		}
		candidates, known := gapTemplates[gap]
		if !known {
			candidates = []string{freeformGapQuestion(gap)}
		}
		if q, ok := pick(candidates); ok {
			out = append(out, q)
		}
	}
	for len(out) < limit {
		q, ok := pick(genericTemplates)
		if !ok {
			break
		}
		out = append(out, q)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: every template was already asked", ErrFollowUpGeneration)
	}
	return out, nil
}

func freeformGapQuestion(gap string) string {
	gap = strings.TrimRight(strings.TrimSpace(gap), ".?!")
	return "Could you say a little more about " + lowerFirst(gap) + "?"
}

var (
	reasoningRe    = regexp.MustCompile(`(?i)(the (answer|response|subject|user|participant) (is|was|does|did|lacks|provides|mentions)|this (answer|response) (is|was|lacks)|\bis (vague|insufficient|too brief)\b|\b(lacks|missing) (specific|concrete|detail)|follow-?up (question|needed)|should (ask|probe))`)
	questionWordRe = regexp.MustCompile(`\b(What|How|Why|When|Where|Who|Which|Can|Could|Would|Will|Do|Does|Did|Is|Are|Have|Has|Tell)\b`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// sanitizeFollowUps keeps candidate questions that read as questions addressed to the
// subject, trims leading preamble, and drops anything already asked or repeated.
func sanitizeFollowUps(candidates, alreadyAsked []string, limit int) []string {
	asked := lo.SliceToMap(alreadyAsked, func(q string) (string, struct{}) {
		return normalizeQuestion(q), struct{}{}
	})

	cleaned := lo.FilterMap(candidates, func(c string, _ int) (string, bool) {
		q := strings.TrimSpace(spaceRe.ReplaceAllString(c, " "))
		q = strings.Trim(q, `"'`)
		if q == "" || utf8.RuneCountInString(q) > maxFollowUpLength || reasoningRe.MatchString(q) {
			return "", false
		}
		if loc := questionWordRe.FindStringIndex(q); loc != nil && loc[0] > 0 {
			q = upperFirst(q[loc[0]:])
		}
		if !strings.HasSuffix(q, "?") && !questionWordRe.MatchString(q) {
			return "", false
		}
		if _, dup := asked[normalizeQuestion(q)]; dup {
			return "", false
		}
		return q, true
	})

	cleaned = lo.UniqBy(cleaned, normalizeQuestion)
	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}

// normalizeQuestion is the comparison key used for dedup.
func normalizeQuestion(q string) string {
	q = strings.ToLower(q)
	q = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, q)
	return strings.Join(strings.Fields(q), " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
