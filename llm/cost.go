package llm

import (
	"context"
	"sync"
	"time"
)

// Cost categories used by this layer.
const (
	CostCategoryLLM         = "llm"
	CostCategoryLLMFallback = "llm_fallback"
	CostCategoryEmbedding   = "embedding"
)

// CostEntry is one usage record forwarded to the cost sink. Storage is the
// sink's concern, not this layer's.
type CostEntry struct {
	UserID      string            `json:"user_id,omitempty"`
	Category    string            `json:"category"`
	CostUSD     float64           `json:"cost_usd"`
	Model       string            `json:"model"`
	InputUnits  int               `json:"input_units"`
	UnitKind    string            `json:"unit_kind"` // "tokens"
	OutputUnits int               `json:"output_units,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	At          time.Time         `json:"at"`
}

// CostTracker is the cost sink collaborator interface.
type CostTracker interface {
	TrackCost(ctx context.Context, entry CostEntry)
}

// Pricing is the external pricing source. Lookup is keyed by the model id
// the provider reported in its response, not the requested one.
type Pricing interface {
	ModelPrice(modelID string) (ModelPricing, bool)
}

// NopTracker discards all cost entries.
type NopTracker struct{}

func (NopTracker) TrackCost(context.Context, CostEntry) {}

// RecordingTracker keeps cost entries in memory. Used in tests and as an
// audit buffer in front of a real sink.
type RecordingTracker struct {
	mu      sync.Mutex
	entries []CostEntry
}

func (t *RecordingTracker) TrackCost(_ context.Context, entry CostEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

// Entries returns a copy of everything recorded so far.
func (t *RecordingTracker) Entries() []CostEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CostEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
