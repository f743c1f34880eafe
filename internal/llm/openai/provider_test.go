package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 150, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "summarize please", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Wants a firm king."}}],"usage":{"total_tokens":42}}`))
	}))
	defer server.Close()

	p := NewProvider("sk-test", "", server.URL)
	resp, err := p.Complete(context.Background(), llm.Request{
		System:    "be brief",
		Prompt:    "summarize please",
		MaxTokens: 150,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Wants a firm king.", resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)
}

func TestProvider_CompleteNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	p := NewProvider("sk-test", "gpt-4o", server.URL)
	_, err := p.Complete(context.Background(), llm.Request{Prompt: "x"}, "")
	require.Error(t, err)

	var extErr *domain.ExternalServiceError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, http.StatusTooManyRequests, extErr.Status)
	assert.Equal(t, "rate limited", extErr.Body)
}

func TestProvider_IsConfigured(t *testing.T) {
	assert.False(t, NewProvider("", "", "").IsConfigured())
	assert.True(t, NewProvider("key", "", "").IsConfigured())
}
