package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
	"github.com/BaSui01/modelgrid/testutil/mocks"
)

// stubSource serves a fixed provider set to the Manager.
type stubSource struct {
	providers map[string]llm.Provider
	def       string
}

func (s *stubSource) Get(id string) (llm.Provider, bool) {
	p, ok := s.providers[id]
	return p, ok
}

func (s *stubSource) Default() (llm.Provider, bool) {
	return s.Get(s.def)
}

func sourceOf(providers ...*mocks.Provider) *stubSource {
	s := &stubSource{providers: make(map[string]llm.Provider)}
	for i, p := range providers {
		s.providers[p.ID] = p
		if i == 0 {
			s.def = p.ID
		}
	}
	return s
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text number %d with some content", i)
	}
	return out
}

var testModels = []ModelConfig{
	{ModelID: "embed-small", ProviderID: "alpha", Dimension: 512, QualityScore: 0.6,
		PricePer1MTokens: 0.02, Default: true},
	{ModelID: "embed-large", ProviderID: "alpha", Dimension: 3072, QualityScore: 0.9,
		PricePer1MTokens: 0.13},
	{ModelID: "embed-code", ProviderID: "alpha", Dimension: 1024, QualityScore: 0.7,
		PricePer1MTokens: 0.05, SupportedCollections: []string{"source-code"}},
	{ModelID: "embed-free", ProviderID: "alpha", Dimension: 256},
}

func newTestManager(cfg Config, providers ...*mocks.Provider) *Manager {
	return NewManager(cfg, sourceOf(providers...), Options{Logger: zap.NewNop()})
}

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name     string
		strategy StrategyConfig
		req      Request
		want     string
	}{
		{"explicit registered id wins", StrategyConfig{Type: StrategyQuality},
			Request{ModelID: "embed-code"}, "embed-code"},
		{"static uses default", StrategyConfig{Type: StrategyStatic},
			Request{}, "embed-small"},
		{"quality picks max score", StrategyConfig{Type: StrategyQuality},
			Request{}, "embed-large"},
		{"cost picks cheapest priced", StrategyConfig{Type: StrategyCost},
			Request{}, "embed-small"},
		{"collection preference match", StrategyConfig{Type: StrategyCollection},
			Request{CollectionID: "source-code"}, "embed-code"},
		{"collection miss falls to default", StrategyConfig{Type: StrategyCollection},
			Request{CollectionID: "nonexistent"}, "embed-small"},
		{"unregistered explicit id falls to strategy", StrategyConfig{Type: StrategyQuality},
			Request{ModelID: "not-configured"}, "embed-large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(Config{Models: testModels, Strategy: tt.strategy},
				mocks.New("alpha", ""))
			mc, err := m.SelectModel(&tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mc.ModelID)
		})
	}
}

func TestSelectModel_StrategyFallback(t *testing.T) {
	cfg := Config{
		Models: []ModelConfig{
			{ModelID: "priced-less", ProviderID: "alpha", Dimension: 64},
			{ModelID: "backup", ProviderID: "alpha", Dimension: 64},
		},
		Strategy: StrategyConfig{Type: StrategyCost, FallbackModelID: "backup"},
	}
	m := newTestManager(cfg, mocks.New("alpha", ""))

	// No model carries a price, so the cost strategy yields nothing and the
	// strategy-level fallback applies.
	mc, err := m.SelectModel(&Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", mc.ModelID)
}

func TestSelectModel_NothingResolvable(t *testing.T) {
	m := newTestManager(Config{Strategy: StrategyConfig{Type: StrategyStatic}},
		mocks.New("alpha", ""))
	_, err := m.SelectModel(&Request{})
	var selErr *llm.ModelSelectionFailedError
	require.ErrorAs(t, err, &selErr)
}

func TestEmbed_BatchCounts(t *testing.T) {
	alpha := mocks.New("alpha", "")
	m := newTestManager(Config{
		Models:           testModels,
		Strategy:         StrategyConfig{Type: StrategyStatic},
		DefaultBatchSize: 32,
		EnableCache:      true,
		CacheMaxSize:     128,
		CacheTTL:         time.Hour,
	}, alpha)

	input := texts(50)
	resp, err := m.Embed(context.Background(), &Request{Texts: input})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 50)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, int32(2), alpha.EmbedCalls.Load(), "50 texts at batch size 32 is 2 calls")
	assert.Positive(t, resp.Usage.TotalTokens)
	assert.Positive(t, resp.Usage.CostUSD)

	// Fully cached: zero provider calls, zero usage.
	resp, err = m.Embed(context.Background(), &Request{Texts: input})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 50)
	assert.Equal(t, int32(2), alpha.EmbedCalls.Load())
	assert.Equal(t, 50, m.CacheLen())
	assert.Zero(t, resp.Usage.TotalTokens)
	assert.Zero(t, resp.Usage.CostUSD)
}

// scriptedEmbedder fails specific Embeddings calls by sequence number.
type scriptedEmbedder struct {
	*mocks.Provider
	failCalls map[int]bool
	calls     int
}

func (s *scriptedEmbedder) Embeddings(ctx context.Context, model string, batch []string) (*llm.EmbeddingResult, error) {
	s.calls++
	if s.failCalls[s.calls] {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "batch exploded", Retryable: true}
	}
	return s.Provider.Embeddings(ctx, model, batch)
}

func TestEmbed_FirstBatchFails(t *testing.T) {
	scripted := &scriptedEmbedder{Provider: mocks.New("alpha", ""), failCalls: map[int]bool{1: true}}
	source := &stubSource{providers: map[string]llm.Provider{"alpha": scripted}, def: "alpha"}
	m := NewManager(Config{
		Models:           testModels,
		Strategy:         StrategyConfig{Type: StrategyStatic},
		DefaultBatchSize: 32,
	}, source, Options{Logger: zap.NewNop()})

	input := texts(50)
	resp, err := m.Embed(context.Background(), &Request{Texts: input})
	require.NoError(t, err, "a failed batch is a partial outcome, not an error")

	// Second batch (18 texts) survived; first batch (32 texts) errored.
	assert.Len(t, resp.Embeddings, 18)
	require.Len(t, resp.Errors, 32)
	for i, te := range resp.Errors {
		assert.Equal(t, i, te.Index)
		assert.Contains(t, te.Message, "batch exploded")
	}
	assert.Equal(t, len(input)-len(resp.Errors), len(resp.Embeddings))

	// Usage accumulates only over the successful batch.
	assert.Positive(t, resp.Usage.TotalTokens)
}

func TestEmbed_CacheSatisfiedTextsSurviveBatchFailure(t *testing.T) {
	// Calls: 1 = cache warm, 2 = main batch 1, 3 = main batch 2 (fails).
	scripted := &scriptedEmbedder{Provider: mocks.New("alpha", ""), failCalls: map[int]bool{3: true}}
	source := &stubSource{providers: map[string]llm.Provider{"alpha": scripted}, def: "alpha"}
	m := NewManager(Config{
		Models:           testModels,
		Strategy:         StrategyConfig{Type: StrategyStatic},
		DefaultBatchSize: 4,
		EnableCache:      true,
		CacheMaxSize:     64,
		CacheTTL:         time.Hour,
	}, source, Options{Logger: zap.NewNop()})

	// Warm the cache with two texts of the batch that will fail.
	warm := texts(8)[4:6]
	_, err := m.Embed(context.Background(), &Request{Texts: warm})
	require.NoError(t, err)

	// Batch 2 covers indices 4-7: 4 and 5 come from cache, only the misses
	// 6 and 7 are marked errored by the failed provider call.
	resp, err := m.Embed(context.Background(), &Request{Texts: texts(8)})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 6)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 6, resp.Errors[0].Index)
	assert.Equal(t, 7, resp.Errors[1].Index)
}

func TestEmbed_EmptyInput(t *testing.T) {
	m := newTestManager(Config{Models: testModels, Strategy: StrategyConfig{Type: StrategyStatic}},
		mocks.New("alpha", ""))
	resp, err := m.Embed(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Empty(t, resp.Embeddings)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, "embed-small", resp.ModelID)
}

func TestEmbed_ProviderWithoutEmbeddings(t *testing.T) {
	source := &stubSource{providers: map[string]llm.Provider{"bare": &noEmbedProvider{}}, def: "bare"}
	m := NewManager(Config{
		Models:   []ModelConfig{{ModelID: "m", ProviderID: "bare", Dimension: 8, Default: true}},
		Strategy: StrategyConfig{Type: StrategyStatic},
	}, source, Options{Logger: zap.NewNop()})

	_, err := m.Embed(context.Background(), &Request{Texts: []string{"hi"}})
	var notSupported *llm.MethodNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, "embeddings", notSupported.Method)
}

type noEmbedProvider struct{}

func (n *noEmbedProvider) Name() string                                     { return "bare" }
func (n *noEmbedProvider) DefaultModel() string                             { return "" }
func (n *noEmbedProvider) Initialize(context.Context, map[string]any) error { return nil }
func (n *noEmbedProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}
func (n *noEmbedProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (n *noEmbedProvider) ListModels(context.Context) ([]llm.ModelInfo, error) { return nil, nil }

func TestDimension(t *testing.T) {
	t.Run("model dimension wins", func(t *testing.T) {
		m := newTestManager(Config{Models: testModels, DefaultDimension: 999}, mocks.New("alpha", ""))
		d, err := m.Dimension("embed-large")
		require.NoError(t, err)
		assert.Equal(t, 3072, d)
	})

	t.Run("manager default for unknown model", func(t *testing.T) {
		m := newTestManager(Config{Models: testModels, DefaultDimension: 999}, mocks.New("alpha", ""))
		d, err := m.Dimension("unknown")
		require.NoError(t, err)
		assert.Equal(t, 999, d)
	})

	t.Run("default model dimension as last resort", func(t *testing.T) {
		m := newTestManager(Config{Models: testModels}, mocks.New("alpha", ""))
		d, err := m.Dimension("")
		require.NoError(t, err)
		assert.Equal(t, 512, d)
	})

	t.Run("nothing configured", func(t *testing.T) {
		m := newTestManager(Config{}, mocks.New("alpha", ""))
		_, err := m.Dimension("")
		var cfgErr *llm.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})
}

func TestEmbed_CostTracked(t *testing.T) {
	costs := &llm.RecordingTracker{}
	m := NewManager(Config{
		Models:   testModels,
		Strategy: StrategyConfig{Type: StrategyStatic},
	}, sourceOf(mocks.New("alpha", "")), Options{Costs: costs, Logger: zap.NewNop()})

	_, err := m.Embed(context.Background(), &Request{Texts: texts(3), UserID: "u1"})
	require.NoError(t, err)

	entries := costs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, llm.CostCategoryEmbedding, entries[0].Category)
	assert.Equal(t, "embed-small", entries[0].Model)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Positive(t, entries[0].InputUnits)
}
