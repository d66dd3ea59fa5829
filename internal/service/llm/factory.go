package llm

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"fmt"
	"strings"
)

// ProviderType represents the type of interpreter provider
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
)

// ParseProviderType parses a string into a ProviderType. "genkit" is accepted as
// an alias for OpenRouter since that provider is served through Genkit.
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "":
		return ProviderOpenAI, nil
	case "openrouter", "genkit":
		return ProviderOpenRouter, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// NewInterpreter creates the interpreter configured by LLM_PROVIDER
func NewInterpreter(ctx context.Context, llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (Interpreter, error) {
	providerType, err := ParseProviderType(llmConfig.Provider)
	if err != nil {
		return nil, err
	}

	switch providerType {
	case ProviderOpenAI:
		logger.Log.Info("Creating OpenAI interpreter")
		return NewOpenAIInterpreter(llmConfig, modelsConfig)
	case ProviderOpenRouter:
		logger.Log.Info("Creating Genkit interpreter for OpenRouter")
		return NewGenkitInterpreter(ctx, llmConfig, modelsConfig)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
