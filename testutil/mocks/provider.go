// Package mocks provides shared mock implementations for tests. The mock
// Provider supports builder-style setup and error injection.
package mocks

import (
	"context"
	"sync/atomic"

	"github.com/BaSui01/modelgrid/llm"
)

// Provider is a configurable in-memory llm.Provider. The zero value is
// usable; builder methods return the receiver for chaining.
type Provider struct {
	ID         string
	Model      string
	Models     []llm.ModelInfo
	Response   *llm.ChatResponse
	Chunks     []llm.StreamChunk
	Health     *llm.HealthStatus
	Vectors    map[string][]float64 // text -> embedding
	KeepPrefix bool
	VectorLen  int

	InitErr       error
	CompletionErr error
	ListErr       error
	EmbedErr      error
	HealthErr     error
	ShutdownErr   error

	CompletionCalls atomic.Int32
	EmbedCalls      atomic.Int32
	ListCalls       atomic.Int32
	ShutdownCalls   atomic.Int32
	Initialized     bool
}

// New creates a mock provider with the given id and default model.
func New(id, model string) *Provider {
	return &Provider{ID: id, Model: model, VectorLen: 4}
}

func (p *Provider) WithModels(models ...llm.ModelInfo) *Provider {
	p.Models = models
	return p
}

func (p *Provider) WithResponse(resp *llm.ChatResponse) *Provider {
	p.Response = resp
	return p
}

func (p *Provider) WithCompletionErr(err error) *Provider {
	p.CompletionErr = err
	return p
}

func (p *Provider) WithEmbedErr(err error) *Provider {
	p.EmbedErr = err
	return p
}

func (p *Provider) Name() string         { return p.ID }
func (p *Provider) DefaultModel() string { return p.Model }

func (p *Provider) KeepsModelPrefix() bool { return p.KeepPrefix }

func (p *Provider) Initialize(context.Context, map[string]any) error {
	if p.InitErr != nil {
		return p.InitErr
	}
	p.Initialized = true
	return nil
}

func (p *Provider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.CompletionCalls.Add(1)
	if p.CompletionErr != nil {
		return nil, p.CompletionErr
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.ChatResponse{
		Provider: p.ID,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: "ok"},
		}},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.CompletionErr != nil {
		return nil, p.CompletionErr
	}
	out := make(chan llm.StreamChunk, len(p.Chunks)+1)
	for _, c := range p.Chunks {
		out <- c
	}
	if len(p.Chunks) == 0 {
		out <- llm.StreamChunk{Provider: p.ID, Model: req.Model, FinishReason: "stop"}
	}
	close(out)
	return out, nil
}

func (p *Provider) ListModels(context.Context) ([]llm.ModelInfo, error) {
	p.ListCalls.Add(1)
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return p.Models, nil
}

// Embeddings returns configured vectors, or deterministic stand-ins sized
// VectorLen, so the mock satisfies llm.Embedder.
func (p *Provider) Embeddings(_ context.Context, _ string, texts []string) (*llm.EmbeddingResult, error) {
	p.EmbedCalls.Add(1)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	result := &llm.EmbeddingResult{}
	for i, text := range texts {
		vec, ok := p.Vectors[text]
		if !ok {
			vec = make([]float64, p.VectorLen)
			for j := range vec {
				vec[j] = float64(len(text)+j) / 10
			}
		}
		result.Data = append(result.Data, llm.EmbeddingData{Index: i, Embedding: vec})
		result.Usage.PromptTokens += len(text) / 4
	}
	result.Usage.TotalTokens = result.Usage.PromptTokens
	return result, nil
}

func (p *Provider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	if p.HealthErr != nil {
		return nil, p.HealthErr
	}
	if p.Health != nil {
		return p.Health, nil
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *Provider) Shutdown(context.Context) error {
	p.ShutdownCalls.Add(1)
	return p.ShutdownErr
}
