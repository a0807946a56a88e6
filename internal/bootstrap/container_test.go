package bootstrap

import (
	"context"
	"testing"

	"deep-research-agent/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Ai: config.AIConfig{
			LLMProvider: "ollama",
			LLMModel:    "llama3",
			MaxRetries:  3,
			BackoffBase: 2,
		},
		Research: config.ResearchConfig{MaxStages: 4, MinConfidence: 0.1},
		Storage: config.StorageConfig{
			Backend:         "file",
			SessionsDir:     t.TempDir(),
			ReportsDir:      t.TempDir(),
			FilePermissions: 0o600,
			ListLimit:       20,
			RetentionDays:   30,
		},
	}
}

func TestNewContainer_FileBackend(t *testing.T) {
	c, err := NewContainer(testConfig(t), nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 4, c.ResearchService.TotalStages())
	assert.Equal(t, 4, c.Validator.Limits().MaxStages)

	session, err := c.SessionService.Create(context.Background(), "Best budget laptop for students", nil)
	require.NoError(t, err)
	loaded, err := c.SessionService.Load(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.Query, loaded.Query)
}

func TestNewContainer_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "memory"

	c, err := NewContainer(cfg, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.ResearchController)
}

func TestNewContainer_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ai.LLMProvider = "openai"

	_, err := NewContainer(cfg, nil)
	assert.Error(t, err)
}
