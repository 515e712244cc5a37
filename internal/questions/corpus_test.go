package questions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCorpus(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"featured", "naive", "neutral"}, c.VariantNames())
	assert.Len(t, c.Background, 3)

	b, err := c.Battery("neutral")
	require.NoError(t, err)
	assert.Len(t, b.Questions, len(b.Background)+len(b.Main))
	assert.Equal(t, c.Background[0], b.Questions[0])
	assert.Equal(t, c.Variants["naive"], c.Variants["featured"])
}

func TestBatteryUnknownVariant(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Battery("bogus")
	require.ErrorIs(t, err, ErrUnknownVariant)
	assert.False(t, c.HasVariant("bogus"))
}

func TestLeadingBackground(t *testing.T) {
	c := &Corpus{Background: []string{"B1", "B2"}, Variants: map[string][]string{"v": {"M1"}}}

	assert.Equal(t, 2, c.LeadingBackground([]string{"B1", "B2", "M1"}))
	assert.Equal(t, 1, c.LeadingBackground([]string{" B1 ", "M1", "B2"}))
	assert.Equal(t, 0, c.LeadingBackground([]string{"M1", "B1"}))
	assert.Equal(t, 0, c.LeadingBackground(nil))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variants:\n  pilot:\n    - \"How did it go?\"\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, c.Background)
	assert.Equal(t, []string{"How did it go?"}, c.Variants["pilot"])
}

func TestParseRejectsInvalidCorpus(t *testing.T) {
	_, err := Parse([]byte("background: [\"B\"]\n"))
	require.Error(t, err)

	_, err = Parse([]byte("variants:\n  empty: []\n"))
	require.ErrorContains(t, err, "empty")

	_, err = Parse([]byte("variants: [oops"))
	require.Error(t, err)
}
