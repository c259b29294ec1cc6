/*
Package llm is the provider orchestration core: it abstracts chat-completion
and embedding vendors behind one [Provider] interface, owns their lifecycle
through [Registry], and routes completion calls through [Router] with cost
tracking and single-shot fallback.

# Provider abstraction

[Provider] covers the mandatory surface (completion, streaming, model
listing). Optional capabilities are separate interfaces discovered by type
assertion: [Embedder], [HealthChecker], [Shutdowner], [PrefixedModelIDs].
Concrete adapters live under providers/ and are wired in through an injected
providerID->[Factory] map (see the factory package).

# Registry

[Registry] initializes providers in configuration order, tolerating
individual failures, and answers provider lookups: by id, by model id
(exact index, default-model match, "provider/" prefix, default), and as an
aggregated, cached model catalog. Health checks and shutdown fan out in
parallel with per-provider isolation.

# Router

[Router.CallLLM] resolves the effective (provider, model) pair for one call,
executes it, prices the result via [Pricing] keyed by the response's model
id, forwards a [CostEntry] to the [CostTracker] sink, and retries exactly
once on the configured fallback provider after a transient failure. If both
attempts fail, the original error propagates.

# Related packages

  - llm/config: availability snapshots, default/fallback resolution, mode table
  - llm/embedding: strategy-driven, batched, cached embedding generation
  - llm/factory: built-in provider factories
*/
package llm
