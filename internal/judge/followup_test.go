package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateGenerator(t *testing.T) {
	gen := NewTemplateGenerator()
	ctx := context.Background()

	t.Run("one question per round by default", func(t *testing.T) {
		got, err := gen.Generate(ctx, FollowUpInput{Gaps: []string{GapTimeframe, GapOutcome}})
		require.NoError(t, err)
		assert.Equal(t, []string{"When did that happen, roughly?"}, got)
	})

	t.Run("one question per gap", func(t *testing.T) {
		got, err := gen.Generate(ctx, FollowUpInput{Gaps: []string{GapTimeframe, GapOutcome}, Max: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"When did that happen, roughly?", "How did that turn out in the end?"}, got)
	})

	t.Run("skips questions already asked", func(t *testing.T) {
		got, err := gen.Generate(ctx, FollowUpInput{
			Gaps:         []string{GapTimeframe},
			AlreadyAsked: []string{"when did that happen roughly"},
			Max:          1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, gapTemplates[GapTimeframe][1], got[0])
	})

	t.Run("unknown gap becomes a freeform question", func(t *testing.T) {
		got, err := gen.Generate(ctx, FollowUpInput{Gaps: []string{"The reason for switching tools."}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Could you say a little more about the reason for switching tools?"}, got)
	})

	t.Run("no gaps asks for detail", func(t *testing.T) {
		got, err := gen.Generate(ctx, FollowUpInput{})
		require.NoError(t, err)
		assert.Equal(t, []string{gapTemplates[GapDetail][0]}, got)
	})

	t.Run("exhausted templates fail", func(t *testing.T) {
		asked := append([]string{}, gapTemplates[GapOutcome]...)
		asked = append(asked, genericTemplates...)
		_, err := gen.Generate(ctx, FollowUpInput{Gaps: []string{GapOutcome}, AlreadyAsked: asked, Max: 1})
		require.ErrorIs(t, err, ErrFollowUpGeneration)
	})
}

func TestSanitizeFollowUps(t *testing.T) {
	long := "What " + strings.Repeat("really ", 40) + "happened?"

	got := sanitizeFollowUps([]string{
		"The answer lacks specific detail about timing.",
		"Thanks for sharing! What happened next?",
		"Great answer.",
		long,
		"When did THAT happen??",
		"  Which   company was it?  ",
		"Which company was it?",
	}, []string{"When did that happen?"}, 0)

	assert.Equal(t, []string{"What happened next?", "Which company was it?"}, got)
}

func TestSanitizeFollowUpsLimit(t *testing.T) {
	got := sanitizeFollowUps([]string{"What happened?", "Who was involved?", "When was it?"}, nil, 2)
	assert.Equal(t, []string{"What happened?", "Who was involved?"}, got)
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "when did that happen", normalizeQuestion("  When did THAT happen?? "))
}
