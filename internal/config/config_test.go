package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_FOLLOWUP_DEPTH", "2")
	t.Setenv("AUDIT_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2, cfg.Interview.MaxFollowUpDepth)
	assert.Equal(t, 3*time.Second, cfg.Interview.AuditTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown store", "SESSION_STORE", "redis"},
		{"negative depth", "MAX_FOLLOWUP_DEPTH", "-1"},
		{"round size too large", "MAX_FOLLOWUPS_PER_ROUND", "4"},
		{"round size zero", "MAX_FOLLOWUPS_PER_ROUND", "0"},
		{"unknown policy", "AUDIT_FAILURE_POLICY", "retry"},
		{"unknown judge", "JUDGE_BACKEND", "oracle"},
		{"confidence out of range", "JUDGE_PROCEED_CONFIDENCE", "1.5"},
		{"zero timeout", "AUDIT_TIMEOUT", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidateRequiresBackendSettings(t *testing.T) {
	cfg := Default()
	cfg.Judge.Backend = JudgeGemini
	require.ErrorContains(t, cfg.Validate(), "GEMINI_API_KEY")

	cfg.Judge.GeminiAPIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.SessionStore = StoreSQLite
	cfg.DBPath = ""
	require.ErrorContains(t, cfg.Validate(), "DB_PATH")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, FailOpen, cfg.Interview.FailurePolicy)
	assert.Equal(t, 1, cfg.Interview.MaxFollowUpsPerRound)
}

func TestGetEnvBoolFallback(t *testing.T) {
	t.Setenv("X_FLAG", "maybe")
	assert.True(t, getEnvBool("X_FLAG", true))
	t.Setenv("X_FLAG", "off")
	assert.False(t, getEnvBool("X_FLAG", true))
}
