// Package openaicompat implements a generic adapter for OpenAI-compatible
// chat/embedding APIs. One adapter covers OpenAI itself plus the aggregators
// and local runtimes that speak the same wire protocol (OpenRouter, Ollama,
// vLLM, Groq) differentiated only by base URL and credentials.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
)

const defaultTimeout = 60 * time.Second

// Provider is a generic OpenAI-compatible adapter. It is constructed
// uninitialized and configured by Registry.Initialize.
type Provider struct {
	name   string
	logger *zap.Logger

	client       *http.Client
	baseURL      string
	apiKey       string
	defaultModel string
	keepPrefix   bool
	initialized  bool
}

// New creates an uninitialized adapter named name.
func New(name string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{name: name, logger: logger}
}

func (p *Provider) Name() string         { return p.name }
func (p *Provider) DefaultModel() string { return p.defaultModel }

// KeepsModelPrefix reports whether this endpoint expects "vendor/model" ids
// unmodified (aggregators like OpenRouter).
func (p *Provider) KeepsModelPrefix() bool { return p.keepPrefix }

// Initialize reads the provider's config entry. base_url is required; an
// empty api_key is allowed for local runtimes.
func (p *Provider) Initialize(_ context.Context, cfg map[string]any) error {
	baseURL, _ := cfg["base_url"].(string)
	if baseURL == "" {
		return &llm.ConfigurationError{Field: p.name + ".base_url", Reason: "required for OpenAI-compatible providers"}
	}
	p.baseURL = strings.TrimRight(baseURL, "/")
	p.apiKey, _ = cfg["api_key"].(string)
	p.defaultModel, _ = cfg["model"].(string)
	p.keepPrefix, _ = cfg["keep_model_prefix"].(bool)

	timeout := defaultTimeout
	if raw, ok := cfg["timeout"].(string); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return &llm.ConfigurationError{Field: p.name + ".timeout", Reason: err.Error()}
		}
		timeout = d
	}
	p.client = &http.Client{Timeout: timeout}
	p.initialized = true
	return nil
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	User        string        `json:"user,omitempty"`
}

type chatWireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      wireMessage `json:"message"`
		Delta        wireMessage `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) buildPayload(req *llm.ChatRequest, stream bool) chatPayload {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return chatPayload{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
		User:        req.UserID,
	}
}

func (p *Provider) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if !p.initialized {
		return nil, &llm.Error{
			Code:     llm.ErrProviderUnavailable,
			Message:  p.name + " provider not initialized",
			Provider: p.name,
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.name,
		}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, llm.MapHTTPError(resp.StatusCode, strings.TrimSpace(string(raw)), p.name)
	}
	return resp, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.do(ctx, http.MethodPost, "/v1/chat/completions", p.buildPayload(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire chatWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &llm.ChatResponse{
		ID:       wire.ID,
		Provider: p.name,
		Model:    wire.Model,
		Usage: llm.ChatUsage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}
	if wire.Created > 0 {
		out.CreatedAt = time.Unix(wire.Created, 0)
	}
	for _, c := range wire.Choices {
		msg := llm.Message{Role: llm.Role(c.Message.Role), Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	return out, nil
}

// Stream issues a streaming completion over SSE. The returned channel closes
// after the [DONE] marker, a decode failure, or ctx cancellation.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.do(ctx, http.MethodPost, "/v1/chat/completions", p.buildPayload(req, true))
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					p.emit(ctx, out, llm.StreamChunk{Err: &llm.Error{
						Code: llm.ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: p.name,
					}})
				}
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wire chatWireResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				p.logger.Warn("malformed stream chunk", zap.String("provider", p.name), zap.Error(err))
				continue
			}

			chunk := llm.StreamChunk{ID: wire.ID, Provider: p.name, Model: wire.Model}
			if len(wire.Choices) > 0 {
				c := wire.Choices[0]
				chunk.Delta = llm.Message{Role: llm.Role(c.Delta.Role), Content: c.Delta.Content}
				chunk.FinishReason = c.FinishReason
			}
			if wire.Usage.TotalTokens > 0 {
				chunk.Usage = &llm.ChatUsage{
					PromptTokens:     wire.Usage.PromptTokens,
					CompletionTokens: wire.Usage.CompletionTokens,
					TotalTokens:      wire.Usage.TotalTokens,
				}
			}
			if !p.emit(ctx, out, chunk) {
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) emit(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	resp, err := p.do(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(wire.Data))
	for _, d := range wire.Data {
		models = append(models, llm.ModelInfo{ID: d.ID, Provider: p.name})
	}
	return models, nil
}

// Embeddings implements the optional llm.Embedder capability.
func (p *Provider) Embeddings(ctx context.Context, model string, texts []string) (*llm.EmbeddingResult, error) {
	payload := map[string]any{"model": model, "input": texts}
	resp, err := p.do(ctx, http.MethodPost, "/v1/embeddings", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}

	out := &llm.EmbeddingResult{
		Usage: llm.EmbeddingUsage{
			PromptTokens: wire.Usage.PromptTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}
	for _, d := range wire.Data {
		out.Data = append(out.Data, llm.EmbeddingData{Index: d.Index, Embedding: d.Embedding})
	}
	return out, nil
}

// HealthCheck implements the optional llm.HealthChecker capability with a
// lightweight model-list probe.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.ListModels(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency, Details: err.Error()}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Shutdown implements the optional llm.Shutdowner capability.
func (p *Provider) Shutdown(context.Context) error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	p.initialized = false
	return nil
}
