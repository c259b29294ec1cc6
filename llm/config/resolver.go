package config

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
)

// knownProvider describes one provider id this layer can resolve, in fixed
// preference order. The order decides which available provider becomes the
// system default when no explicit override is configured.
type knownProvider struct {
	ID           string
	EnvVar       string // credential env var, "" for local providers
	DefaultModel string
}

var knownProviders = []knownProvider{
	{ID: "openai", EnvVar: "OPENAI_API_KEY", DefaultModel: "gpt-4o-mini"},
	{ID: "anthropic", EnvVar: "ANTHROPIC_API_KEY", DefaultModel: "claude-sonnet-4-20250514"},
	{ID: "openrouter", EnvVar: "OPENROUTER_API_KEY", DefaultModel: "openai/gpt-4o-mini"},
	{ID: "ollama", EnvVar: "", DefaultModel: "llama3.1"},
}

// AgentDefinition is the resolved execution profile for one task mode.
type AgentDefinition struct {
	ProviderID string
	ModelID    string
	PromptKey  string
	Tools      []string
}

// Resolver answers "which provider/model serves this request" questions from
// a fixed configuration snapshot. The availability snapshot is computed once
// at construction so diagnostics are reproducible.
type Resolver struct {
	cfg    *Config
	logger *zap.Logger
	avail  map[string]llm.Availability
}

// NewResolver builds a resolver and its availability snapshot from cfg and
// the current environment.
func NewResolver(cfg *Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		cfg:    cfg,
		logger: logger,
		avail:  make(map[string]llm.Availability, len(knownProviders)),
	}
	for _, kp := range knownProviders {
		r.avail[kp.ID] = r.checkAvailability(kp)
	}
	return r
}

func (r *Resolver) checkAvailability(kp knownProvider) llm.Availability {
	section, configured := r.cfg.providerSection(kp.ID)
	if !configured {
		return llm.Availability{
			Reason: "not present in configuration",
			Hint:   "add a providers entry for " + kp.ID,
			EnvVar: kp.EnvVar,
		}
	}
	if !section.Enabled {
		return llm.Availability{
			Reason: "disabled in configuration",
			EnvVar: kp.EnvVar,
		}
	}
	if kp.EnvVar == "" {
		// Local provider, reachability is checked at call time.
		return llm.Availability{Available: true}
	}

	key := credentialFor(section, kp.EnvVar)
	if key == "" {
		return llm.Availability{
			Reason: "no API key configured",
			Hint:   "set " + kp.EnvVar + " or providers." + kp.ID + ".config.api_key",
			EnvVar: kp.EnvVar,
		}
	}
	if isPlaceholder(key) {
		return llm.Availability{
			Reason: "API key is a placeholder value",
			Hint:   "replace the placeholder in " + kp.EnvVar,
			EnvVar: kp.EnvVar,
		}
	}
	return llm.Availability{Available: true, EnvVar: kp.EnvVar}
}

func credentialFor(section ProviderSection, envVar string) string {
	if v, ok := section.Config["api_key"].(string); ok && v != "" {
		return v
	}
	return os.Getenv(envVar)
}

func isPlaceholder(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case k == "", k == "changeme", k == "todo", k == "xxx":
		return true
	case strings.HasPrefix(k, "your-"), strings.HasPrefix(k, "sk-your"),
		strings.HasPrefix(k, "<"), strings.Contains(k, "replace"):
		return true
	}
	return false
}

// Availability returns a copy of the full availability snapshot, one record
// per known provider id whether configured or not.
func (r *Resolver) Availability() map[string]llm.Availability {
	out := make(map[string]llm.Availability, len(r.avail))
	for id, a := range r.avail {
		out[id] = a
	}
	return out
}

// IsAvailable reports whether id refers to a known, available provider.
func (r *Resolver) IsAvailable(id string) bool {
	return r.avail[id].Available
}

// defaultModelOf resolves a provider's configured default model: an explicit
// "model" key in its config section, else the built-in known default.
func (r *Resolver) defaultModelOf(id string) string {
	if section, ok := r.cfg.providerSection(id); ok {
		if m, ok := section.Config["model"].(string); ok && m != "" {
			return m
		}
	}
	for _, kp := range knownProviders {
		if kp.ID == id {
			return kp.DefaultModel
		}
	}
	return ""
}

// DefaultProviderAndModel resolves the system default pair. An explicit
// override naming an available provider wins; otherwise the fixed preference
// order decides. With nothing available the error carries the whole
// availability snapshot.
func (r *Resolver) DefaultProviderAndModel() (providerID, modelID string, err error) {
	if r.cfg.DefaultProvider != "" {
		if r.IsAvailable(r.cfg.DefaultProvider) {
			model := r.cfg.DefaultModel
			if model == "" {
				model = r.defaultModelOf(r.cfg.DefaultProvider)
			}
			return r.cfg.DefaultProvider, model, nil
		}
		r.logger.Warn("configured default provider is unavailable",
			zap.String("provider", r.cfg.DefaultProvider),
			zap.String("reason", r.avail[r.cfg.DefaultProvider].Reason))
	}

	for _, kp := range knownProviders {
		if r.avail[kp.ID].Available {
			return kp.ID, r.defaultModelOf(kp.ID), nil
		}
	}
	return "", "", &llm.NoProviderConfiguredError{Snapshot: r.Availability()}
}

// AgentDefinition resolves the execution profile for a task mode. Sub-mode
// variants ("mode.variant") take precedence over the bare mode; an unknown
// mode falls back to the system default model with a warning. A
// "provider/model" id naming a known available provider overrides the system
// default provider for this call.
func (r *Resolver) AgentDefinition(mode string, subModes ...string) (AgentDefinition, error) {
	defProvider, defModel, err := r.DefaultProviderAndModel()
	if err != nil {
		return AgentDefinition{}, err
	}

	def := AgentDefinition{
		ProviderID: defProvider,
		ModelID:    defModel,
		Tools:      r.cfg.ModeTools[mode],
	}

	section, ok := r.lookupMode(mode, subModes)
	if !ok {
		r.logger.Warn("no mode entry, using system default model",
			zap.String("mode", mode), zap.String("model", defModel))
		return def, nil
	}
	def.ModelID = section.Model
	def.PromptKey = section.PromptKey

	if prefix, _, found := strings.Cut(section.Model, "/"); found {
		if r.IsAvailable(prefix) {
			def.ProviderID = prefix
		} else if _, known := r.avail[prefix]; known {
			r.logger.Warn("mode model names an unavailable provider, keeping default",
				zap.String("mode", mode),
				zap.String("model", section.Model),
				zap.String("provider", defProvider))
		}
	}
	return def, nil
}

func (r *Resolver) lookupMode(mode string, subModes []string) (ModeSection, bool) {
	for _, variant := range subModes {
		if s, ok := r.cfg.Modes[mode+"."+variant]; ok {
			return s, true
		}
	}
	s, ok := r.cfg.Modes[mode]
	return s, ok
}

// FallbackProviderID returns the explicitly configured fallback provider, or
// "" when unset or unavailable. There is no heuristic fallback selection.
func (r *Resolver) FallbackProviderID() string {
	id := r.cfg.FallbackProvider
	if id == "" || !r.IsAvailable(id) {
		return ""
	}
	return id
}
