package llm

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/openai/openai-go"
	"github.com/sirupsen/logrus"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterPrefix  = "openrouter/"
)

// GenkitInterpreter implements Interpreter using Firebase Genkit with OpenRouter via compat_oai
type GenkitInterpreter struct {
	genkit *genkit.Genkit
	config *config.LLMConfig
	models *config.ModelsConfig
}

// NewGenkitInterpreter creates a Genkit instance configured for OpenRouter
func NewGenkitInterpreter(ctx context.Context, llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig) (*GenkitInterpreter, error) {
	apiKey := llmConfig.OpenRouterAPIKey
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not configured")
	}

	defaultModel := modelsConfig.GetDefaultModel(string(ProviderOpenRouter))

	g := genkit.Init(ctx,
		genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "openrouter",
			APIKey:   apiKey,
			BaseURL:  openRouterBaseURL,
		}),
		genkit.WithDefaultModel(openRouterPrefix+defaultModel),
	)

	logger.Log.WithField("default_model", defaultModel).Info("Initialized Genkit with OpenRouter provider")

	return &GenkitInterpreter{
		genkit: g,
		config: llmConfig,
		models: modelsConfig,
	}, nil
}

func (p *GenkitInterpreter) Name() string {
	return string(ProviderOpenRouter)
}

func (p *GenkitInterpreter) DefaultModel() string {
	return p.models.GetDefaultModel(string(ProviderOpenRouter))
}

// Interpret generates a reply through the OpenRouter-compatible Genkit model
func (p *GenkitInterpreter) Interpret(ctx context.Context, history []Message, prompt, model string) (string, error) {
	if model == "" {
		model = p.DefaultModel()
	}
	if !strings.HasPrefix(model, openRouterPrefix) {
		model = openRouterPrefix + model
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(history) + 1,
	}).Info("Calling Genkit")

	resp, err := genkit.Generate(ctx, p.genkit,
		ai.WithMessages(toGenkitMessages(buildConversation(p.config.SystemPrompt, history, prompt))...),
		ai.WithModelName(model),
		ai.WithConfig(&openai.ChatCompletionNewParams{
			Temperature: openai.Float(p.config.Temperature),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("genkit generation failed: %w", err)
	}

	if resp.Usage != nil {
		logger.Log.WithFields(logrus.Fields{
			"model":         model,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		}).Debug("Genkit usage")
	}

	return resp.Text(), nil
}

func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, &ai.Message{
			Role:    genkitRole(msg.Role),
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}
	return out
}

func genkitRole(role string) ai.Role {
	switch role {
	case RoleSystem:
		return ai.RoleSystem
	case RoleAssistant:
		return ai.RoleModel
	default:
		return ai.RoleUser
	}
}
