package factory

import (
	"fmt"
	"strings"

	"deep-research-agent/pkg/llm"
	"deep-research-agent/pkg/llm/gemini"
	"deep-research-agent/pkg/llm/huggingface"
	"deep-research-agent/pkg/llm/ollama"
)

const (
	ProviderOllama      = "ollama"
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
)

type ProviderConfig struct {
	Provider           string
	Model              string
	OllamaBaseURL      string
	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	GeminiAPIKey       string
}

func NewLLMProvider(cfg ProviderConfig) (llm.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOllama, "":
		return ollama.NewOllamaProvider(cfg.OllamaBaseURL, cfg.Model), nil
	case ProviderHuggingFace:
		if cfg.HuggingFaceAPIKey == "" {
			return nil, fmt.Errorf("huggingface provider requires HUGGINGFACE_API_KEY")
		}
		return huggingface.NewHuggingFaceProvider(cfg.HuggingFaceAPIKey, cfg.HuggingFaceBaseURL, cfg.Model), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider requires GOOGLE_GEMINI_API_KEY")
		}
		return gemini.NewGeminiProvider(cfg.GeminiAPIKey, "", cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
