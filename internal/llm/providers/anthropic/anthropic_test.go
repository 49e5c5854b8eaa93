package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := &Provider{defaultModel: "claude-test"}
	require.NoError(t, p.Initialize(map[string]string{"api_key": "ak-test", "base_url": srv.URL}))
	return p
}

func TestCompleteTextJoinsTextBlocks(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"ACT I "},{"type":"text","text":"rain."}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}
		}`))
	})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "outline", SystemPrompt: "sys", Temperature: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "ACT I rain.", resp.Text)
	assert.Equal(t, 5, resp.OutputTokens)
	assert.Equal(t, "anthropic", resp.ProviderName)
}

func TestCompleteTextMapsAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "x"})
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, llm.IsRetryable(err))
}

func TestInitializeRequiresKey(t *testing.T) {
	p := &Provider{}
	assert.Error(t, p.Initialize(map[string]string{}))
}
