package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProviderEntry is one provider block from configuration. It is consumed by
// Registry.Initialize and not retained.
type ProviderEntry struct {
	ID      string         `json:"id" yaml:"id"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Default bool           `json:"default,omitempty" yaml:"default,omitempty"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Registry owns every Provider instance for the process lifetime. It selects
// the default provider, maintains the model->provider index and the cached
// aggregate model catalog, and fans out health checks and shutdown.
//
// Construction is driven by an injected providerID->Factory map so new
// vendors register without touching this code.
type Registry struct {
	factories map[string]Factory
	logger    *zap.Logger

	mu            sync.RWMutex
	initialized   bool
	providers     map[string]Provider
	order         []string // registration order, follows config order
	defaultID     string
	defaultMarked bool              // defaultID came from an explicit Default flag
	modelIndex    map[string]string // modelID -> providerID, first writer wins
	catalog       []ModelInfo
	catalogValid  bool
}

// NewRegistry creates an uninitialized registry backed by the given factory
// map. A nil logger falls back to zap.NewNop.
func NewRegistry(factories map[string]Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories:  factories,
		logger:     logger,
		providers:  make(map[string]Provider),
		modelIndex: make(map[string]string),
	}
}

// Initialize constructs and initializes providers in config order. A single
// misconfigured provider is logged and skipped, never aborting the rest.
// The first successfully-initialized entry marked Default becomes the default
// provider; with no marked entry, the first success wins. Re-initializing an
// already-initialized registry resets all state first.
func (r *Registry) Initialize(ctx context.Context, entries []ProviderEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		r.logger.Warn("provider registry already initialized, resetting")
		r.resetLocked()
	}

	for _, entry := range entries {
		if !entry.Enabled {
			r.logger.Debug("provider disabled, skipping", zap.String("provider", entry.ID))
			continue
		}

		factory, ok := r.factories[entry.ID]
		if !ok {
			r.logger.Error("no factory for provider, skipping", zap.String("provider", entry.ID))
			continue
		}

		cfg := entry.Config
		if cfg == nil {
			cfg = map[string]any{}
		}

		provider, err := factory(cfg, r.logger)
		if err != nil {
			r.logger.Error("provider construction failed, skipping",
				zap.String("provider", entry.ID), zap.Error(err))
			continue
		}
		if err := provider.Initialize(ctx, cfg); err != nil {
			r.logger.Error("provider initialization failed, skipping",
				zap.String("provider", entry.ID), zap.Error(err))
			continue
		}

		r.providers[entry.ID] = provider
		r.order = append(r.order, entry.ID)
		r.electDefaultLocked(entry)
		r.indexModelsLocked(ctx, provider)

		r.logger.Info("provider registered",
			zap.String("provider", entry.ID),
			zap.String("default_model", provider.DefaultModel()))
	}

	if len(r.providers) == 0 {
		r.logger.Warn("no providers initialized", zap.Int("entries", len(entries)))
	}

	r.initialized = true
	return nil
}

// electDefaultLocked applies default-provider selection as entries register.
// The first flagged entry wins permanently; an unflagged first success holds
// the slot until a flagged entry appears.
func (r *Registry) electDefaultLocked(entry ProviderEntry) {
	if entry.Default && !r.defaultMarked {
		r.defaultID = entry.ID
		r.defaultMarked = true
		return
	}
	if r.defaultID == "" {
		r.defaultID = entry.ID
	}
}

// indexModelsLocked merges the provider's models into the model index
// (first writer wins) and invalidates the aggregate catalog cache.
func (r *Registry) indexModelsLocked(ctx context.Context, p Provider) {
	models, err := p.ListModels(ctx)
	if err != nil {
		r.logger.Warn("listing models failed during registration",
			zap.String("provider", p.Name()), zap.Error(err))
	}
	for _, m := range models {
		if _, taken := r.modelIndex[m.ID]; !taken {
			r.modelIndex[m.ID] = p.Name()
		}
	}
	r.catalogValid = false
	r.catalog = nil
}

// Reset returns the registry to its pre-Initialize state, discarding all
// providers and caches without calling their Shutdown. Use Shutdown for
// orderly teardown; Reset exists for explicit re-configuration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Registry) resetLocked() {
	r.providers = make(map[string]Provider)
	r.order = nil
	r.defaultID = ""
	r.defaultMarked = false
	r.modelIndex = make(map[string]string)
	r.catalog = nil
	r.catalogValid = false
	r.initialized = false
}

// Get returns the provider registered under id. It never panics: a missing
// provider or an uninitialized registry yields (nil, false).
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return nil, false
	}
	p, ok := r.providers[id]
	return p, ok
}

// Default returns the default provider, if any.
func (r *Registry) Default() (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized || r.defaultID == "" {
		return nil, false
	}
	p, ok := r.providers[r.defaultID]
	return p, ok
}

// ProviderForModel resolves the provider serving modelID:
// exact index hit, then any provider whose default model matches, then the
// "provider/" id prefix if registered, then the default provider.
func (r *Registry) ProviderForModel(modelID string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return nil, false
	}

	if id, ok := r.modelIndex[modelID]; ok {
		if p, ok := r.providers[id]; ok {
			return p, true
		}
	}

	for _, id := range r.order {
		if p := r.providers[id]; p.DefaultModel() == modelID {
			return p, true
		}
	}

	if prefix, _, found := strings.Cut(modelID, "/"); found {
		if p, ok := r.providers[prefix]; ok {
			return p, true
		}
	}

	if r.defaultID != "" {
		if p, ok := r.providers[r.defaultID]; ok {
			return p, true
		}
	}
	return nil, false
}

// ListAllModels aggregates every provider's model list. Providers are
// queried in parallel with per-provider error isolation: a broken provider
// contributes an empty list. Results are de-duplicated by model id
// (first-seen wins, in registration order) and cached until the next
// provider registration. The returned slice is always a copy.
func (r *Registry) ListAllModels(ctx context.Context) []ModelInfo {
	r.mu.RLock()
	if !r.initialized {
		r.mu.RUnlock()
		return nil
	}
	if r.catalogValid {
		out := make([]ModelInfo, len(r.catalog))
		copy(out, r.catalog)
		r.mu.RUnlock()
		return out
	}
	order := make([]string, len(r.order))
	copy(order, r.order)
	providers := make([]Provider, len(order))
	for i, id := range order {
		providers[i] = r.providers[id]
	}
	r.mu.RUnlock()

	results := make([][]ModelInfo, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			models, err := p.ListModels(gctx)
			if err != nil {
				r.logger.Warn("listing models failed",
					zap.String("provider", p.Name()), zap.Error(err))
				return nil
			}
			results[i] = models
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var merged []ModelInfo
	for _, models := range results {
		for _, m := range models {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	r.mu.Lock()
	r.catalog = merged
	r.catalogValid = true
	r.mu.Unlock()

	out := make([]ModelInfo, len(merged))
	copy(out, merged)
	return out
}

// ModelInfoByID looks a model up on its resolved provider first, then falls
// back to scanning the aggregate catalog.
func (r *Registry) ModelInfoByID(ctx context.Context, modelID, providerID string) (ModelInfo, bool) {
	var p Provider
	var ok bool
	if providerID != "" {
		p, ok = r.Get(providerID)
	} else {
		p, ok = r.ProviderForModel(modelID)
	}
	if ok {
		if models, err := p.ListModels(ctx); err == nil {
			for _, m := range models {
				if m.ID == modelID {
					return m, true
				}
			}
		}
	}

	for _, m := range r.ListAllModels(ctx) {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// CheckHealth probes every provider concurrently. Overall health is the
// logical AND of individual results; a provider without the HealthChecker
// capability counts healthy by virtue of being initialized.
func (r *Registry) CheckHealth(ctx context.Context) (bool, map[string]HealthStatus) {
	r.mu.RLock()
	if !r.initialized {
		r.mu.RUnlock()
		return false, nil
	}
	providers := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		providers = append(providers, r.providers[id])
	}
	r.mu.RUnlock()

	statuses := make([]HealthStatus, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			hc, ok := p.(HealthChecker)
			if !ok {
				statuses[i] = HealthStatus{Healthy: true, Details: "no health check, assumed healthy"}
				return nil
			}
			start := time.Now()
			st, err := hc.HealthCheck(gctx)
			latency := time.Since(start)
			if err != nil || st == nil {
				statuses[i] = HealthStatus{Healthy: false, Latency: latency}
				if err != nil {
					statuses[i].Details = err.Error()
				}
				return nil
			}
			if st.Latency == 0 {
				st.Latency = latency
			}
			statuses[i] = *st
			return nil
		})
	}
	_ = g.Wait()

	overall := true
	byProvider := make(map[string]HealthStatus, len(providers))
	for i, p := range providers {
		byProvider[p.Name()] = statuses[i]
		overall = overall && statuses[i].Healthy
		observeProviderHealth(p.Name(), statuses[i].Healthy, statuses[i].Latency)
	}
	return overall, byProvider
}

// Shutdown tears every provider down concurrently, tolerating individual
// failures, then clears all registry state. A second call is a no-op.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		r.logger.Warn("provider registry already shut down")
		return nil
	}
	providers := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		providers = append(providers, r.providers[id])
	}
	r.resetLocked()
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			s, ok := p.(Shutdowner)
			if !ok {
				return nil
			}
			if err := s.Shutdown(gctx); err != nil {
				r.logger.Warn("provider shutdown failed",
					zap.String("provider", p.Name()), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
