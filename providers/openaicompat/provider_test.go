package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
)

func initialized(t *testing.T, serverURL string) *Provider {
	t.Helper()
	p := New("testvendor", zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), map[string]any{
		"base_url": serverURL,
		"api_key":  "sk-test",
		"model":    "test-model",
	}))
	return p
}

func TestInitialize_RequiresBaseURL(t *testing.T) {
	p := New("x", zap.NewNop())
	err := p.Initialize(context.Background(), map[string]any{})
	var cfgErr *llm.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-model", payload["model"])

		fmt.Fprint(w, `{
			"id": "cmpl-1",
			"model": "test-model-2026",
			"created": 1767225600,
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	p := initialized(t, server.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:    "test-model",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "test-model-2026", resp.Model)
	assert.Equal(t, "testvendor", resp.Provider)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompletion_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized, false},
		{http.StatusForbidden, llm.ErrForbidden, false},
		{http.StatusBadRequest, llm.ErrInvalidRequest, false},
		{http.StatusTooManyRequests, llm.ErrRateLimited, true},
		{http.StatusInternalServerError, llm.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			}))
			defer server.Close()

			p := initialized(t, server.URL)
			_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "m"})
			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"model\":\"m\",\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"hel\"}}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"id\":\"s1\",\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := initialized(t, server.URL)
	stream, err := p.Stream(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range stream {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "hel", chunks[0].Delta.Content)
	assert.Equal(t, "lo", chunks[1].Delta.Content)
	assert.Equal(t, "stop", chunks[1].FinishReason)
	require.NotNil(t, chunks[1].Usage)
	assert.Equal(t, 7, chunks[1].Usage.TotalTokens)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		fmt.Fprint(w, `{"data": [{"id": "m1"}, {"id": "m2"}]}`)
	}))
	defer server.Close()

	p := initialized(t, server.URL)
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "m1", models[0].ID)
	assert.Equal(t, "testvendor", models[0].Provider)
}

func TestEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var payload struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "embed-m", payload.Model)
		assert.Len(t, payload.Input, 2)

		fmt.Fprint(w, `{
			"data": [
				{"index": 0, "embedding": [0.1, 0.2]},
				{"index": 1, "embedding": [0.3, 0.4]}
			],
			"usage": {"prompt_tokens": 5, "total_tokens": 5}
		}`)
	}))
	defer server.Close()

	p := initialized(t, server.URL)
	result, err := p.Embeddings(context.Background(), "embed-m", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, []float64{0.3, 0.4}, result.Data[1].Embedding)
	assert.Equal(t, 5, result.Usage.TotalTokens)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	p := initialized(t, server.URL)
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Positive(t, status.Latency)
}
