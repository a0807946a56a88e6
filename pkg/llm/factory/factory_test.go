package factory

import (
	"testing"

	"deep-research-agent/pkg/llm/gemini"
	"deep-research-agent/pkg/llm/huggingface"
	"deep-research-agent/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		want    interface{}
		wantErr bool
	}{
		{name: "default is ollama", cfg: ProviderConfig{}, want: &ollama.OllamaProvider{}},
		{name: "ollama", cfg: ProviderConfig{Provider: "Ollama"}, want: &ollama.OllamaProvider{}},
		{name: "huggingface", cfg: ProviderConfig{Provider: "huggingface", HuggingFaceAPIKey: "k"}, want: &huggingface.HuggingFaceProvider{}},
		{name: "huggingface without key", cfg: ProviderConfig{Provider: "huggingface"}, wantErr: true},
		{name: "gemini", cfg: ProviderConfig{Provider: "gemini", GeminiAPIKey: "k"}, want: &gemini.GeminiProvider{}},
		{name: "gemini without key", cfg: ProviderConfig{Provider: "gemini"}, wantErr: true},
		{name: "unknown", cfg: ProviderConfig{Provider: "openai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLLMProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}
