// Package embedding selects embedding models per request, batches texts,
// consults a TTL+LRU cache, and aggregates partial per-text failures without
// aborting the whole request.
package embedding

import "time"

// StrategyType names a model-selection strategy.
type StrategyType string

const (
	// StrategyStatic always uses the configured default model.
	StrategyStatic StrategyType = "static"
	// StrategyQuality picks the model with the highest quality score.
	StrategyQuality StrategyType = "dynamic_quality"
	// StrategyCost picks the cheapest priced model.
	StrategyCost StrategyType = "dynamic_cost"
	// StrategyCollection picks the first model supporting the request's
	// collection.
	StrategyCollection StrategyType = "dynamic_collection_preference"
)

// ModelConfig describes one configured embedding model.
type ModelConfig struct {
	ModelID              string   `yaml:"model_id" json:"model_id"`
	ProviderID           string   `yaml:"provider_id" json:"provider_id"`
	Dimension            int      `yaml:"dimension" json:"dimension"`
	QualityScore         float64  `yaml:"quality_score,omitempty" json:"quality_score,omitempty"`
	PricePer1MTokens     float64  `yaml:"price_per_1m_tokens,omitempty" json:"price_per_1m_tokens,omitempty"`
	SupportedCollections []string `yaml:"supported_collections,omitempty" json:"supported_collections,omitempty"`
	Default              bool     `yaml:"default,omitempty" json:"default,omitempty"`
}

// StrategyConfig selects and parameterizes the model-selection strategy.
type StrategyConfig struct {
	Type            StrategyType `yaml:"type" json:"type"`
	FallbackModelID string       `yaml:"fallback_model_id,omitempty" json:"fallback_model_id,omitempty"`
}

// Config is the embedding section of the configuration surface.
type Config struct {
	Models           []ModelConfig  `yaml:"models" json:"models"`
	Strategy         StrategyConfig `yaml:"strategy" json:"strategy"`
	DefaultBatchSize int            `yaml:"default_batch_size,omitempty" json:"default_batch_size,omitempty"`
	EnableCache      bool           `yaml:"enable_cache,omitempty" json:"enable_cache,omitempty"`
	CacheMaxSize     int            `yaml:"cache_max_size,omitempty" json:"cache_max_size,omitempty"`
	CacheTTL         time.Duration  `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
	DefaultDimension int            `yaml:"default_dimension,omitempty" json:"default_dimension,omitempty"`
}

// Request asks for embeddings of Texts. ModelID and ProviderID are optional
// hints; CollectionID feeds the collection-preference strategy.
type Request struct {
	Texts        []string `json:"texts"`
	ModelID      string   `json:"model_id,omitempty"`
	ProviderID   string   `json:"provider_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	CollectionID string   `json:"collection_id,omitempty"`
}

// TextError reports the failure of one input text, by original index.
type TextError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Usage accumulates token counts and cost over the successful batches only.
type Usage struct {
	InputTokens int     `json:"input_tokens"`
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
}

// Response carries the produced embeddings in original request order,
// compacted: len(Embeddings) == len(request.Texts) - len(Errors). Errors
// lists the inputs that produced no vector, by original index.
type Response struct {
	Embeddings [][]float64 `json:"embeddings"`
	ModelID    string      `json:"model_id"`
	ProviderID string      `json:"provider_id"`
	Usage      Usage       `json:"usage"`
	Errors     []TextError `json:"errors,omitempty"`
}
