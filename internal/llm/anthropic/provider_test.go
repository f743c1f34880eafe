package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/mattressai-engine/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku-20240307", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, "sys", req.System)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Side sleeper, runs hot."}],"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	p := NewProvider("key", "", server.URL)
	resp, err := p.Complete(context.Background(), llm.Request{System: "sys", Prompt: "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Side sleeper, runs hot.", resp.Text)
	assert.Equal(t, 15, resp.TokensUsed)
}

func TestProvider_CompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	p := NewProvider("key", "", server.URL)
	_, err := p.Complete(context.Background(), llm.Request{Prompt: "hi"}, "")
	assert.Error(t, err)
}
