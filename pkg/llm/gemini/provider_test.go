package gemini

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

func TestGeminiProvider_Chat(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"summary\":"},{"text":"\"ok\"}"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("secret", srv.URL, "gemini-test")
	text, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be precise"},
		{Role: "assistant", Content: "earlier"},
		{Role: "user", Content: "question"},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok"}`, text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be precise", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 2)
	assert.Equal(t, "model", got.Contents[0].Role)
	assert.Equal(t, "user", got.Contents[1].Role)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	text, err := NewGeminiProvider("k", srv.URL, "").Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, text)
}
