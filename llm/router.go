package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfigResolver is the configuration-side collaborator of the Router
// (implemented by config.Resolver). It answers availability and default
// questions without owning provider instances.
type ConfigResolver interface {
	DefaultProviderAndModel() (providerID, modelID string, err error)
	FallbackProviderID() string
	IsAvailable(providerID string) bool
}

// Call is one completion request handed to the Router. ProviderID and
// ModelID are hints, not requirements; the router resolves the effective
// pair.
type Call struct {
	ProviderID string
	ModelID    string
	UserID     string
	Request    *ChatRequest
}

// RouterOptions carries the Router's optional collaborators.
type RouterOptions struct {
	Pricing Pricing
	Costs   CostTracker
	Logger  *zap.Logger
}

func normalizeRouterOptions(opts RouterOptions) RouterOptions {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Costs == nil {
		opts.Costs = NopTracker{}
	}
	return opts
}

// Router resolves the effective (provider, model) for a completion call,
// invokes it, tracks cost, and retries exactly once on a configured fallback
// provider after a transient failure.
type Router struct {
	registry *Registry
	resolver ConfigResolver
	pricing  Pricing
	costs    CostTracker
	logger   *zap.Logger
}

// NewRouter wires a Router over the given registry and config resolver.
func NewRouter(registry *Registry, resolver ConfigResolver, opts RouterOptions) *Router {
	opts = normalizeRouterOptions(opts)
	return &Router{
		registry: registry,
		resolver: resolver,
		pricing:  opts.Pricing,
		costs:    opts.Costs,
		logger:   opts.Logger,
	}
}

// resolve picks the provider and model for a call:
// an explicit provider id wins (model defaults to the provider's default),
// then an available "provider/model" prefix, then the system default pair.
func (rt *Router) resolve(call *Call) (Provider, string, error) {
	if call.ProviderID != "" {
		p, ok := rt.registry.Get(call.ProviderID)
		if !ok {
			return nil, "", &ProviderNotFoundError{ProviderID: call.ProviderID}
		}
		model := call.ModelID
		if model == "" {
			model = p.DefaultModel()
		}
		if model == "" {
			return nil, "", &ModelIDMissingError{ProviderID: call.ProviderID}
		}
		return p, model, nil
	}

	if prefix, rest, found := strings.Cut(call.ModelID, "/"); found && rt.resolver.IsAvailable(prefix) {
		if p, ok := rt.registry.Get(prefix); ok {
			model := rest
			if pm, ok := p.(PrefixedModelIDs); ok && pm.KeepsModelPrefix() {
				model = call.ModelID
			}
			return p, model, nil
		}
	}

	providerID, model, err := rt.resolver.DefaultProviderAndModel()
	if err != nil {
		return nil, "", err
	}
	p, ok := rt.registry.Get(providerID)
	if !ok {
		return nil, "", &ProviderNotFoundError{ProviderID: providerID}
	}
	if call.ModelID != "" {
		model = call.ModelID
	}
	return p, model, nil
}

// CallLLM executes one completion. On a retryable failure it attempts the
// configured fallback provider exactly once; if that also fails, the
// original error (not the fallback's) propagates.
func (rt *Router) CallLLM(ctx context.Context, call *Call) (*ChatResponse, error) {
	provider, model, err := rt.resolve(call)
	if err != nil {
		return nil, err
	}

	req := rt.buildRequest(call, model)
	resp, err := provider.Completion(ctx, req)
	observeCompletion(provider.Name(), err)
	if err == nil {
		rt.trackCost(ctx, call.UserID, CostCategoryLLM, resp, nil)
		return resp, nil
	}

	rt.logger.Warn("completion failed",
		zap.String("provider", provider.Name()),
		zap.String("model", model),
		zap.Bool("retryable", IsRetryable(err)),
		zap.Error(err))

	if !IsRetryable(err) {
		return nil, WrapProviderError(provider.Name(), err)
	}

	fallbackID := rt.resolver.FallbackProviderID()
	if fallbackID == "" || fallbackID == provider.Name() {
		return nil, WrapProviderError(provider.Name(), err)
	}
	fallback, ok := rt.registry.Get(fallbackID)
	if !ok {
		return nil, WrapProviderError(provider.Name(), err)
	}

	fbModel := fallback.DefaultModel()
	if fbModel == "" {
		fbModel = model
	}
	fbResp, fbErr := fallback.Completion(ctx, rt.buildRequest(call, fbModel))
	observeFallback(provider.Name(), fbErr)
	if fbErr != nil {
		rt.logger.Error("fallback completion failed, surfacing original error",
			zap.String("fallback", fallbackID),
			zap.String("original_provider", provider.Name()),
			zap.Error(fbErr))
		return nil, WrapProviderError(provider.Name(), err)
	}

	rt.logger.Info("fallback completion succeeded",
		zap.String("fallback", fallbackID),
		zap.String("original_provider", provider.Name()))
	rt.trackCost(ctx, call.UserID, CostCategoryLLMFallback, fbResp,
		map[string]string{"original_provider": provider.Name()})
	return fbResp, nil
}

// Stream resolves and starts a streaming completion. Streams are finite and
// non-restartable, so there is no fallback retry: a mid-stream failure
// surfaces as an error chunk.
func (rt *Router) Stream(ctx context.Context, call *Call) (<-chan StreamChunk, error) {
	provider, model, err := rt.resolve(call)
	if err != nil {
		return nil, err
	}
	return provider.Stream(ctx, rt.buildRequest(call, model))
}

func (rt *Router) buildRequest(call *Call, model string) *ChatRequest {
	req := &ChatRequest{}
	if call.Request != nil {
		clone := *call.Request
		req = &clone
	}
	req.Model = model
	if req.UserID == "" {
		req.UserID = call.UserID
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	return req
}

// trackCost prices the response by the model id the provider reported and
// forwards the entry to the cost sink. Unknown pricing skips tracking
// without failing the call.
func (rt *Router) trackCost(ctx context.Context, userID, category string, resp *ChatResponse, metadata map[string]string) {
	if rt.pricing == nil {
		return
	}
	price, ok := rt.pricing.ModelPrice(resp.Model)
	if !ok {
		rt.logger.Debug("no pricing for model, skipping cost tracking",
			zap.String("model", resp.Model))
		return
	}

	cost := float64(resp.Usage.PromptTokens)/1000*price.PromptPer1K +
		float64(resp.Usage.CompletionTokens)/1000*price.CompletionPer1K
	resp.Usage.Cost = cost

	at := resp.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	rt.costs.TrackCost(ctx, CostEntry{
		UserID:      userID,
		Category:    category,
		CostUSD:     cost,
		Model:       resp.Model,
		InputUnits:  resp.Usage.PromptTokens,
		UnitKind:    "tokens",
		OutputUnits: resp.Usage.CompletionTokens,
		Metadata:    metadata,
		At:          at,
	})
}
