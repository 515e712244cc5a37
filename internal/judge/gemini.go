package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/interview-probe/internal/domain"
)

const defaultGeminiModel = "gemini-2.5-flash"

const auditSystemPrompt = `You audit answers in a qualitative research interview.
Decide whether the participant's answer, together with their earlier answers to the
same question, contains enough concrete detail to move on.
Sufficient answers usually include a specific example, a rough timeframe, the tools,
companies or people involved, and how things turned out.
An answer stating the participant has no relevant experience is sufficient.
Background questions only need a brief answer.
Reply with JSON only:
{"shouldProceed": bool, "confidence": number 0-1, "reason": string, "gapsIdentified": [string]}`

const followUpSystemPrompt = `You write follow-up questions for a qualitative research interview.
Each question must target exactly one of the listed gaps, be neutral and open-ended,
be addressed to the participant, and be under 200 characters.
Never repeat a question that was already asked.
Reply with JSON only: {"followUpQuestions": [string]}`

// generateFunc sends one system+user prompt pair and returns the raw text reply.
type generateFunc func(ctx context.Context, system, user string) (string, error)

// GeminiJudge asks a Gemini model for verdicts and follow-ups.
// It implements Auditor and FollowUpGenerator.
type GeminiJudge struct {
	generate      generateFunc
	model         string
	minConfidence float64
	logger        *slog.Logger
}

// GeminiConfig configures the Gemini judge.
type GeminiConfig struct {
	APIKey        string
	Model         string
	MinConfidence float64
}

// NewGeminiJudge creates a judge backed by the Gemini API.
func NewGeminiJudge(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiJudge, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	generate := func(ctx context.Context, system, user string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(user), &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return newGeminiJudge(generate, model, cfg.MinConfidence, logger), nil
}

func newGeminiJudge(generate generateFunc, model string, minConfidence float64, logger *slog.Logger) *GeminiJudge {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiJudge{
		generate:      generate,
		model:         model,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Name returns the judge name used in logs and /api/config.
func (g *GeminiJudge) Name() string {
	return "gemini:" + g.model
}

// Audit asks the model for a sufficiency verdict.
func (g *GeminiJudge) Audit(ctx context.Context, in AuditInput) (domain.AuditResult, error) {
	text, err := g.generate(ctx, auditSystemPrompt, buildAuditPrompt(in))
	if err != nil {
		return domain.AuditResult{}, g.wrap("audit", err)
	}
	result, err := parseVerdict(text)
	if err != nil {
		g.logger.Warn("gemini returned an unparseable verdict", "error", err)
		return domain.AuditResult{}, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}
	return applyMinConfidence(result, g.minConfidence), nil
}

// Generate asks the model for follow-up questions.
func (g *GeminiJudge) Generate(ctx context.Context, in FollowUpInput) ([]string, error) {
	text, err := g.generate(ctx, followUpSystemPrompt, buildFollowUpPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFollowUpGeneration, g.wrap("generate follow-ups", err))
	}
	candidates, err := parseFollowUps(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFollowUpGeneration, err)
	}
	out := sanitizeFollowUps(candidates, in.AlreadyAsked, in.Max)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: model returned no usable questions", ErrFollowUpGeneration)
	}
	return out, nil
}

func (g *GeminiJudge) wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrAuditTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrAuditUnavailable, op, err)
}

func buildAuditPrompt(in AuditInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main question: %s\n", in.MainQuestion)
	if in.Background {
		b.WriteString("This is a background question.\n")
	}
	if len(in.Prior) > 0 {
		b.WriteString("Earlier exchanges on this question:\n")
		for _, ex := range in.Prior {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
	}
	fmt.Fprintf(&b, "Question just answered: %s\nAnswer: %s\n", in.Question, in.Answer)
	return b.String()
}

func buildFollowUpPrompt(in FollowUpInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main question: %s\n", in.MainQuestion)
	fmt.Fprintf(&b, "Question just answered: %s\nAnswer: %s\n", in.Question, in.Answer)
	fmt.Fprintf(&b, "Gaps: %s\n", strings.Join(in.Gaps, "; "))
	if len(in.AlreadyAsked) > 0 {
		fmt.Fprintf(&b, "Already asked: %s\n", strings.Join(in.AlreadyAsked, " | "))
	}
	fmt.Fprintf(&b, "Write at most %d question(s).\n", max(in.Max, 1))
	return b.String()
}
