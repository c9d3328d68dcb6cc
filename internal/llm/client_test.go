package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cinescope/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(apiKey, baseURL string) *Client {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			APIKey:    apiKey,
			Model:     "test-model",
			MaxTokens: 100,
			Timeout:   5 * time.Second,
		},
	}
	client := NewClient(cfg, zap.NewNop())
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	return client
}

func TestClientDisabledWithoutKey(t *testing.T) {
	client := testClient("", "")
	assert.False(t, client.Enabled())

	_, err := client.Complete(context.Background(), "system", "prompt")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestCompleteParsesTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "system", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "prompt", req.Messages[0].Content[0].Text)

		json.NewEncoder(w).Encode(Response{
			Role:       "assistant",
			StopReason: "end_turn",
			Content: []ContentBlock{
				{Type: "text", Text: "Hello "},
				{Type: "text", Text: "world"},
			},
		})
	}))
	defer server.Close()

	client := testClient("key-123", server.URL)
	text, err := client.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
}

func TestCompleteWithToolsCarriesDefinitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "lookup", req.Tools[0].Name)

		json.NewEncoder(w).Encode(Response{
			Role:       "assistant",
			StopReason: "tool_use",
			Content: []ContentBlock{
				{Type: "tool_use", ID: "toolu_1", Name: "lookup", Input: json.RawMessage(`{"q":"x"}`)},
			},
		})
	}))
	defer server.Close()

	client := testClient("key-123", server.URL)
	resp, err := client.CompleteWithTools(context.Background(), "", []Message{TextMessage("user", "hi")}, []Tool{
		{Name: "lookup", Description: "d", InputSchema: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "tool_use", resp.StopReason)

	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "lookup", uses[0].Name)
	assert.Empty(t, resp.Text())
}

func TestAPIErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "max_tokens required"}}`))
	}))
	defer server.Close()

	client := testClient("key-123", server.URL)
	_, err := client.Complete(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens required")
	assert.Contains(t, err.Error(), "400")
}
