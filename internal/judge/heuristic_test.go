package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/interview-probe/internal/domain"
)

const richAnswer = "Last year I applied for a marketing internship at Google. " +
	"I used ChatGPT to rewrite my cover letter and tailor it to the job description. " +
	"It helped me land an interview, and I eventually got an offer from the team."

func TestHeuristicAuditor(t *testing.T) {
	auditor := NewHeuristicAuditor(DefaultHeuristicConfig())

	tests := []struct {
		name        string
		in          AuditInput
		wantProceed bool
		wantGaps    []string
	}{
		{
			name:        "rich answer proceeds",
			in:          AuditInput{Question: "Q", MainQuestion: "Q", Answer: richAnswer},
			wantProceed: true,
		},
		{
			name:        "thin answer is probed",
			in:          AuditInput{Question: "Q", MainQuestion: "Q", Answer: "I used ChatGPT once."},
			wantProceed: false,
			wantGaps:    []string{GapDetail, GapTimeframe, GapOutcome},
		},
		{
			name:        "no experience proceeds",
			in:          AuditInput{Question: "Q", MainQuestion: "Q", Answer: "I've never used AI tools for job applications."},
			wantProceed: true,
		},
		{
			name:        "short background answer proceeds",
			in:          AuditInput{Question: "B", MainQuestion: "B", Answer: "I'm a senior studying biology.", Background: true},
			wantProceed: true,
		},
		{
			name:        "one word background answer is probed",
			in:          AuditInput{Question: "B", MainQuestion: "B", Answer: "Biology", Background: true},
			wantProceed: false,
			wantGaps:    []string{GapDetail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auditor.Audit(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProceed, got.ShouldProceed)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
			assert.NotEmpty(t, got.Reason)
			for _, gap := range tt.wantGaps {
				assert.Contains(t, got.GapsIdentified, gap)
			}
			if tt.wantProceed {
				assert.Empty(t, got.GapsIdentified)
			}
		})
	}
}

func TestHeuristicAuditorAccumulatesPriorAnswers(t *testing.T) {
	auditor := NewHeuristicAuditor(DefaultHeuristicConfig())
	followUpAnswer := "It was last spring and I got two callbacks from Deloitte."

	alone, err := auditor.Audit(context.Background(), AuditInput{Question: "F", MainQuestion: "Q", Answer: followUpAnswer})
	require.NoError(t, err)
	assert.False(t, alone.ShouldProceed)

	withPrior, err := auditor.Audit(context.Background(), AuditInput{
		Question:     "F",
		MainQuestion: "Q",
		Answer:       followUpAnswer,
		Prior: []domain.Exchange{{
			Question: "Q",
			Answer: "I used ChatGPT to rewrite my resume summary for consulting applications. " +
				"The tool suggested stronger action verbs and I trimmed a lot of filler.",
		}},
	})
	require.NoError(t, err)
	assert.True(t, withPrior.ShouldProceed)
}

func TestHeuristicAuditorIsDeterministic(t *testing.T) {
	auditor := NewHeuristicAuditor(DefaultHeuristicConfig())
	in := AuditInput{Question: "Q", MainQuestion: "Q", Answer: "I tried it for a while and it was fine."}

	first, err := auditor.Audit(context.Background(), in)
	require.NoError(t, err)
	second, err := auditor.Audit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeuristicAuditorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristicAuditor(HeuristicConfig{}).Audit(ctx, AuditInput{Answer: richAnswer})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHasEntity(t *testing.T) {
	assert.True(t, hasEntity("I applied to a job at Microsoft last week"))
	assert.True(t, hasEntity("mostly chatgpt for drafts"))
	assert.False(t, hasEntity("I think I used it a bit. I'm not sure."))
}

func TestCountSentences(t *testing.T) {
	assert.Equal(t, 3, countSentences("One. Two! Three?"))
	assert.Equal(t, 1, countSentences("no punctuation at all"))
	assert.Equal(t, 0, countSentences("   "))
}
