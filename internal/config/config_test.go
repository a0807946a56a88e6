package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "RESEARCH_MAX_STAGES", "RESEARCH_RATE_LIMIT_DELAY", "RESEARCH_MIN_CONFIDENCE",
		"LLM_MAX_RETRIES", "LLM_RETRY_DELAY", "LLM_BACKOFF_BASE", "SESSION_BACKEND", "SESSIONS_DIR",
		"REPORTS_DIR", "SESSION_FILE_PERMISSIONS", "SESSION_LIST_LIMIT", "SESSION_RETENTION_DAYS",
		"GO_ENV", "LLM_PROVIDER", "LLM_MODEL")

	cfg := Load()

	assert.Equal(t, 6, cfg.Research.MaxStages)
	assert.Equal(t, time.Second, cfg.Research.RateLimitDelay)
	assert.InDelta(t, 0.1, cfg.Research.MinConfidence, 1e-9)
	assert.Equal(t, 3, cfg.Ai.MaxRetries)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 20, cfg.Storage.ListLimit)
	assert.Equal(t, 0o600, int(cfg.Storage.FilePermissions))
	require.NoError(t, cfg.Validate())
}

func TestEnvHelpers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{
			name:  "duration as go syntax",
			value: "1500ms",
			check: func(t *testing.T) {
				assert.Equal(t, 1500*time.Millisecond, getEnvAsDuration("TEST_VALUE", time.Second))
			},
		},
		{
			name:  "duration as seconds",
			value: "2.5",
			check: func(t *testing.T) {
				assert.Equal(t, 2500*time.Millisecond, getEnvAsDuration("TEST_VALUE", time.Second))
			},
		},
		{
			name:  "negative duration falls back",
			value: "-1s",
			check: func(t *testing.T) {
				assert.Equal(t, time.Second, getEnvAsDuration("TEST_VALUE", time.Second))
			},
		},
		{
			name:  "malformed int falls back",
			value: "six",
			check: func(t *testing.T) {
				assert.Equal(t, 6, getEnvAsInt("TEST_VALUE", 6))
			},
		},
		{
			name:  "octal file mode",
			value: "0640",
			check: func(t *testing.T) {
				assert.Equal(t, 0o640, int(getEnvAsFileMode("TEST_VALUE", 0o600)))
			},
		},
		{
			name:  "non octal file mode falls back",
			value: "0988",
			check: func(t *testing.T) {
				assert.Equal(t, 0o600, int(getEnvAsFileMode("TEST_VALUE", 0o600)))
			},
		},
		{
			name:  "bool",
			value: "true",
			check: func(t *testing.T) {
				assert.True(t, getEnvAsBool("TEST_VALUE", false))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_VALUE", tt.value)
			tt.check(t)
		})
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	unsetEnv(t, "RESEARCH_MAX_STAGES", "RESEARCH_MIN_CONFIDENCE", "LLM_MAX_RETRIES", "LLM_BACKOFF_BASE",
		"SESSION_BACKEND", "SESSIONS_DIR", "REPORTS_DIR", "SESSION_LIST_LIMIT", "SESSION_RETENTION_DAYS",
		"GO_ENV", "LLM_PROVIDER", "LLM_MODEL")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	cfg.Research.MinConfidence = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Research.MinConfidence = 0.1
	cfg.Storage.Backend = "s3"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Backend = "memory"
	cfg.Storage.SessionsDir = ""
	assert.NoError(t, cfg.Validate())
}
