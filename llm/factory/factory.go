// Package factory maps provider ids to their constructors. It imports the
// concrete adapter packages so the llm package itself never needs to,
// keeping the id->constructor dispatch an open table instead of a growing
// conditional inside the registry.
package factory

import (
	"go.uber.org/zap"

	"github.com/BaSui01/modelgrid/llm"
	"github.com/BaSui01/modelgrid/providers/openaicompat"
)

// Known OpenAI-compatible endpoints. Anything else needs an explicit
// base_url in its config entry.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com",
	"openrouter": "https://openrouter.ai/api",
	"ollama":     "http://localhost:11434",
}

// Default returns the built-in providerID->factory map handed to
// llm.NewRegistry. Callers may add or replace entries before constructing
// the registry; nothing here is process-global.
func Default(logger *zap.Logger) map[string]llm.Factory {
	factories := make(map[string]llm.Factory, len(defaultBaseURLs))
	for id := range defaultBaseURLs {
		factories[id] = compatFactory(id, logger)
	}
	return factories
}

// Compat returns a factory for any additional OpenAI-compatible endpoint
// (vLLM, Groq, self-hosted gateways) registered under id.
func Compat(id string, logger *zap.Logger) llm.Factory {
	return compatFactory(id, logger)
}

func compatFactory(id string, logger *zap.Logger) llm.Factory {
	return func(cfg map[string]any, factoryLogger *zap.Logger) (llm.Provider, error) {
		if factoryLogger != nil {
			logger = factoryLogger
		}
		if _, ok := cfg["base_url"]; !ok {
			if base, known := defaultBaseURLs[id]; known {
				cfg["base_url"] = base
			}
		}
		if id == "openrouter" {
			if _, ok := cfg["keep_model_prefix"]; !ok {
				cfg["keep_model_prefix"] = true
			}
		}
		return openaicompat.New(id, logger), nil
	}
}
