package config

import (
	"encoding/json"
	"os"
)

const (
	fallbackOpenAIModel     = "gpt-4o-mini"
	fallbackOpenRouterModel = "openai/gpt-4o-mini"
)

// Model represents an interpreter model offered to users
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`
}

// ModelsConfig holds the interpreter model catalogue
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// NewModelsConfigFromList wraps an in-memory catalogue
func NewModelsConfigFromList(models []Model) *ModelsConfig {
	return &ModelsConfig{models: models}
}

// GetAvailableModels returns the whole catalogue
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// ModelsForProvider returns the models served by one provider, in catalogue order
func (mc *ModelsConfig) ModelsForProvider(provider string) []Model {
	var out []Model
	for _, model := range mc.models {
		if model.Provider == provider {
			out = append(out, model)
		}
	}
	return out
}

// IsValidModel checks if a model ID is in the catalogue
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first catalogue entry for the provider
func (mc *ModelsConfig) GetDefaultModel(provider string) string {
	if models := mc.ModelsForProvider(provider); len(models) > 0 {
		return models[0].ID
	}
	if provider == "openrouter" {
		return fallbackOpenRouterModel
	}
	return fallbackOpenAIModel
}
