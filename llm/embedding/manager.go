package embedding

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
	"github.com/BaSui01/modelgrid/llm/tokenizer"
)

const (
	defaultBatchSize    = 32
	defaultCacheMaxSize = 2048
	defaultCacheTTL     = time.Hour
)

// ProviderSource resolves provider instances by id (implemented by
// llm.Registry).
type ProviderSource interface {
	Get(id string) (llm.Provider, bool)
	Default() (llm.Provider, bool)
}

// Options carries the Manager's optional collaborators.
type Options struct {
	Costs  llm.CostTracker
	Logger *zap.Logger
}

// Manager generates embeddings: it selects a model per request via the
// configured strategy, splits texts into fixed-size batches, consults the
// vector cache first, and records per-text errors instead of aborting on a
// failed batch.
type Manager struct {
	cfg       Config
	providers ProviderSource
	costs     llm.CostTracker
	logger    *zap.Logger
	estimator *tokenizer.Estimator

	models         map[string]ModelConfig
	defaultModelID string
	batchSize      int
	cache          *vectorCache
}

// NewManager builds a Manager from cfg. The cache is created here and lives
// until process teardown.
func NewManager(cfg Config, providers ProviderSource, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Costs == nil {
		opts.Costs = llm.NopTracker{}
	}

	m := &Manager{
		cfg:       cfg,
		providers: providers,
		costs:     opts.Costs,
		logger:    opts.Logger,
		estimator: tokenizer.NewEstimator(),
		models:    make(map[string]ModelConfig, len(cfg.Models)),
		batchSize: cfg.DefaultBatchSize,
	}
	if m.batchSize <= 0 {
		m.batchSize = defaultBatchSize
	}

	for _, mc := range cfg.Models {
		if _, dup := m.models[mc.ModelID]; !dup {
			m.models[mc.ModelID] = mc
		}
		if m.defaultModelID == "" || (mc.Default && !m.models[m.defaultModelID].Default) {
			m.defaultModelID = mc.ModelID
		}
	}

	if cfg.EnableCache {
		size := cfg.CacheMaxSize
		if size <= 0 {
			size = defaultCacheMaxSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		m.cache = newVectorCache(size, ttl)
	}
	return m
}

// SelectModel resolves the embedding model for a request. Precedence:
// explicit registered model id, strategy pick, strategy fallback id,
// manager default. It never returns an empty result without an error.
func (m *Manager) SelectModel(req *Request) (ModelConfig, error) {
	if req.ModelID != "" {
		if mc, ok := m.models[req.ModelID]; ok {
			return mc, nil
		}
		m.logger.Warn("requested embedding model not configured, selecting by strategy",
			zap.String("model", req.ModelID))
	}

	if mc, ok := m.selectByStrategy(req); ok {
		return mc, nil
	}

	if id := m.cfg.Strategy.FallbackModelID; id != "" {
		if mc, ok := m.models[id]; ok {
			return mc, nil
		}
	}

	if mc, ok := m.models[m.defaultModelID]; ok {
		return mc, nil
	}
	return ModelConfig{}, &llm.ModelSelectionFailedError{Strategy: string(m.cfg.Strategy.Type)}
}

func (m *Manager) selectByStrategy(req *Request) (ModelConfig, bool) {
	switch m.cfg.Strategy.Type {
	case StrategyStatic:
		mc, ok := m.models[m.defaultModelID]
		return mc, ok

	case StrategyQuality:
		var best ModelConfig
		found := false
		for _, mc := range m.cfg.Models {
			if !found || mc.QualityScore > best.QualityScore {
				best, found = mc, true
			}
		}
		return best, found

	case StrategyCost:
		var best ModelConfig
		found := false
		for _, mc := range m.cfg.Models {
			if mc.PricePer1MTokens <= 0 {
				continue
			}
			if !found || mc.PricePer1MTokens < best.PricePer1MTokens {
				best, found = mc, true
			}
		}
		return best, found

	case StrategyCollection:
		if req.CollectionID == "" {
			return ModelConfig{}, false
		}
		for _, mc := range m.cfg.Models {
			for _, coll := range mc.SupportedCollections {
				if coll == req.CollectionID {
					return mc, true
				}
			}
		}
		return ModelConfig{}, false
	}
	return ModelConfig{}, false
}

// Embed produces embeddings for req.Texts. Batches run sequentially; a
// failed provider call records per-index errors for the texts of that batch
// not already satisfied from cache and processing continues. The response is
// compacted: len(Embeddings) == len(req.Texts) - len(Errors).
func (m *Manager) Embed(ctx context.Context, req *Request) (*Response, error) {
	model, err := m.SelectModel(req)
	if err != nil {
		return nil, err
	}
	embedder, providerID, err := m.resolveEmbedder(req, model)
	if err != nil {
		return nil, err
	}

	resp := &Response{ModelID: model.ModelID, ProviderID: providerID}
	if len(req.Texts) == 0 {
		resp.Embeddings = [][]float64{}
		return resp, nil
	}

	vectors := make([][]float64, len(req.Texts))
	failed := make(map[int]string)

	for start := 0; start < len(req.Texts); start += m.batchSize {
		end := min(start+m.batchSize, len(req.Texts))
		m.embedBatch(ctx, embedder, model, req.Texts, start, end, vectors, failed, &resp.Usage)
	}

	for i := range req.Texts {
		if msg, bad := failed[i]; bad {
			resp.Errors = append(resp.Errors, TextError{Index: i, Message: msg})
			continue
		}
		resp.Embeddings = append(resp.Embeddings, vectors[i])
	}
	sort.Slice(resp.Errors, func(i, j int) bool { return resp.Errors[i].Index < resp.Errors[j].Index })
	if resp.Embeddings == nil {
		resp.Embeddings = [][]float64{}
	}

	m.trackCost(ctx, req.UserID, model, resp)
	return resp, nil
}

// embedBatch fills vectors[start:end] for one batch: cache hits first, then
// a single provider call for the misses. A provider failure marks only the
// cache-miss indices of this batch as errored.
func (m *Manager) embedBatch(ctx context.Context, embedder llm.Embedder, model ModelConfig,
	texts []string, start, end int, vectors [][]float64, failed map[int]string, usage *Usage) {

	var misses []int
	for i := start; i < end; i++ {
		if m.cache != nil {
			if v, ok := m.cache.Get(model.ModelID, texts[i]); ok {
				vectors[i] = v
				continue
			}
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return
	}

	missTexts := make([]string, len(misses))
	for j, i := range misses {
		missTexts[j] = texts[i]
	}

	result, err := embedder.Embeddings(ctx, model.ModelID, missTexts)
	if err != nil {
		batchFailuresTotal.Inc()
		m.logger.Warn("embedding batch failed",
			zap.String("model", model.ModelID),
			zap.Int("batch_start", start),
			zap.Int("texts", len(missTexts)),
			zap.Error(err))
		for _, i := range misses {
			failed[i] = err.Error()
		}
		return
	}

	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(misses) {
			continue
		}
		i := misses[d.Index]
		vectors[i] = d.Embedding
		if m.cache != nil {
			m.cache.Add(model.ModelID, texts[i], d.Embedding)
		}
	}
	for _, i := range misses {
		if vectors[i] == nil {
			failed[i] = "provider returned no embedding for this input"
		}
	}

	tokens := result.Usage.TotalTokens
	if tokens == 0 {
		tokens = m.estimator.CountAll(missTexts)
	}
	input := result.Usage.PromptTokens
	if input == 0 {
		input = tokens
	}
	usage.InputTokens += input
	usage.TotalTokens += tokens
	if model.PricePer1MTokens > 0 {
		usage.CostUSD += float64(tokens) / 1e6 * model.PricePer1MTokens
	}
}

func (m *Manager) resolveEmbedder(req *Request, model ModelConfig) (llm.Embedder, string, error) {
	providerID := req.ProviderID
	if providerID == "" {
		providerID = model.ProviderID
	}

	var provider llm.Provider
	var ok bool
	if providerID != "" {
		provider, ok = m.providers.Get(providerID)
	} else {
		provider, ok = m.providers.Default()
	}
	if !ok {
		return nil, "", &llm.ProviderNotFoundError{ProviderID: providerID}
	}

	embedder, ok := provider.(llm.Embedder)
	if !ok {
		return nil, "", &llm.MethodNotSupportedError{ProviderID: provider.Name(), Method: "embeddings"}
	}
	return embedder, provider.Name(), nil
}

func (m *Manager) trackCost(ctx context.Context, userID string, model ModelConfig, resp *Response) {
	if resp.Usage.TotalTokens == 0 {
		return
	}
	m.costs.TrackCost(ctx, llm.CostEntry{
		UserID:     userID,
		Category:   llm.CostCategoryEmbedding,
		CostUSD:    resp.Usage.CostUSD,
		Model:      model.ModelID,
		InputUnits: resp.Usage.InputTokens,
		UnitKind:   "tokens",
		At:         time.Now(),
	})
}

// Dimension resolves the embedding dimension: the model's configured
// dimension, then the manager-wide default, then the default model's.
func (m *Manager) Dimension(modelID string) (int, error) {
	if modelID != "" {
		if mc, ok := m.models[modelID]; ok && mc.Dimension > 0 {
			return mc.Dimension, nil
		}
	}
	if m.cfg.DefaultDimension > 0 {
		return m.cfg.DefaultDimension, nil
	}
	if mc, ok := m.models[m.defaultModelID]; ok && mc.Dimension > 0 {
		return mc.Dimension, nil
	}
	return 0, &llm.ConfigurationError{
		Field:  "embedding.default_dimension",
		Reason: "no dimension configured for model or manager",
	}
}

// CacheLen reports the number of live cache entries, for diagnostics.
func (m *Manager) CacheLen() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}
