package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deep-research-agent/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatEndpoint, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: `{"summary":"ok"}`}, Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	text, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be precise"},
		{Role: "model", Content: "earlier"},
		{Role: "user", Content: "question"},
	}, llm.WithTemperature(0.1))
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok"}`, text)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewOllamaProvider_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewOllamaProvider("", "m").BaseURL)
}
