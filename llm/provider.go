package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Tools       []ToolSchema      `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"` // USD
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// StreamChunk is one element of a completion stream. The final chunk carries
// a non-empty FinishReason and, when the vendor reports it, the Usage total.
// A stream is finite and non-restartable: the channel is closed after the
// final chunk (or after an error chunk).
type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          *Error     `json:"error,omitempty"`
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Details string        `json:"details,omitempty"`
}

// ModelPricing is the per-1K-token price of a model. Currency is an ISO 4217
// code, USD unless stated otherwise.
type ModelPricing struct {
	PromptPer1K     float64 `json:"prompt_per_1k" yaml:"prompt_per_1k"`
	CompletionPer1K float64 `json:"completion_per_1k" yaml:"completion_per_1k"`
	Currency        string  `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// ModelInfo describes one inference target exposed by a provider.
type ModelInfo struct {
	ID            string        `json:"id"`
	Provider      string        `json:"provider"`
	Name          string        `json:"name,omitempty"`
	ContextWindow int           `json:"context_window,omitempty"`
	Pricing       *ModelPricing `json:"pricing,omitempty"`
	Capabilities  []string      `json:"capabilities,omitempty"`
}

// Provider is the unified adapter interface to one AI vendor. Exactly one
// instance exists per provider id, owned by the Registry for its lifetime.
//
// Optional capabilities (embeddings, health checks, shutdown, prefixed model
// ids) are discovered by type assertion against the interfaces below rather
// than widening this contract.
type Provider interface {
	// Name returns the unique provider id (e.g. "openai", "openrouter").
	Name() string

	// DefaultModel returns the configured default model id, or "".
	DefaultModel() string

	// Initialize prepares the provider from its config entry. It is called
	// exactly once by the Registry before any other method.
	Initialize(ctx context.Context, cfg map[string]any) error

	// Completion performs a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream performs a streaming chat request. The returned channel is
	// closed after the final chunk; cancelling ctx closes it early.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// ListModels returns the models this provider currently exposes.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// EmbeddingData is a single embedding vector, indexed by input position.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingUsage is the token usage of one embeddings call.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingResult is the raw result of a provider embeddings call.
type EmbeddingResult struct {
	Data  []EmbeddingData `json:"data"`
	Usage EmbeddingUsage  `json:"usage"`
}

// Embedder is the optional embeddings capability of a Provider.
type Embedder interface {
	Embeddings(ctx context.Context, model string, texts []string) (*EmbeddingResult, error)
}

// HealthChecker is the optional health-probe capability of a Provider.
// A provider without it is treated as healthy while initialized.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// Shutdowner is the optional teardown capability of a Provider.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// PrefixedModelIDs marks aggregator providers (OpenRouter and friends) whose
// upstream API expects "vendor/model" ids; the router leaves the prefix on
// the model id for these instead of stripping it.
type PrefixedModelIDs interface {
	KeepsModelPrefix() bool
}

// Factory constructs an uninitialized Provider from its config entry.
// Registered per provider id so new vendors plug in without touching the
// Registry (see factory package).
type Factory func(cfg map[string]any, logger *zap.Logger) (Provider, error)
