// Package config derives, from static configuration and environment, which
// providers are usable, the system default (provider, model) pair, the task
// mode table, and the fallback provider. It owns no provider instances; the
// Registry does.
package config

import (
	"github.com/BaSui01/modelgrid/llm"
	"github.com/BaSui01/modelgrid/llm/embedding"
)

// ProviderSection is one provider block of the configuration file.
type ProviderSection struct {
	ID      string         `yaml:"id" json:"id"`
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Default bool           `yaml:"default,omitempty" json:"default,omitempty"`
	Config  map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// ModeSection maps one task mode (or "mode.variant" sub-mode) to a model and
// prompt key.
type ModeSection struct {
	Model     string `yaml:"model" json:"model"`
	PromptKey string `yaml:"prompt_key,omitempty" json:"prompt_key,omitempty"`
}

// PriceTable implements llm.Pricing over a static model->price map.
type PriceTable map[string]llm.ModelPricing

func (t PriceTable) ModelPrice(modelID string) (llm.ModelPricing, bool) {
	p, ok := t[modelID]
	return p, ok
}

// Config is the full configuration surface of the orchestration layer.
type Config struct {
	Providers        []ProviderSection      `yaml:"providers" json:"providers"`
	DefaultProvider  string                 `yaml:"default_provider,omitempty" json:"default_provider,omitempty"`
	DefaultModel     string                 `yaml:"default_model,omitempty" json:"default_model,omitempty"`
	FallbackProvider string                 `yaml:"fallback_provider,omitempty" json:"fallback_provider,omitempty"`
	Modes            map[string]ModeSection `yaml:"modes,omitempty" json:"modes,omitempty"`
	ModeTools        map[string][]string    `yaml:"mode_tools,omitempty" json:"mode_tools,omitempty"`
	Pricing          PriceTable             `yaml:"pricing,omitempty" json:"pricing,omitempty"`
	Embedding        embedding.Config       `yaml:"embedding,omitempty" json:"embedding,omitempty"`
}

// ProviderEntries converts the provider sections into registry input,
// preserving file order (default election depends on it).
func (c *Config) ProviderEntries() []llm.ProviderEntry {
	entries := make([]llm.ProviderEntry, 0, len(c.Providers))
	for _, p := range c.Providers {
		entries = append(entries, llm.ProviderEntry{
			ID:      p.ID,
			Enabled: p.Enabled,
			Default: p.Default,
			Config:  p.Config,
		})
	}
	return entries
}

func (c *Config) providerSection(id string) (ProviderSection, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderSection{}, false
}
