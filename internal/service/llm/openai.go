package llm

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

var ErrEmptyResponse = errors.New("interpreter returned no choices")

// OpenAIInterpreter calls the OpenAI chat completions API directly
type OpenAIInterpreter struct {
	client openai.Client
	config *config.LLMConfig
	models *config.ModelsConfig
}

// NewOpenAIInterpreter creates an interpreter backed by the OpenAI API
func NewOpenAIInterpreter(llmConfig *config.LLMConfig, modelsConfig *config.ModelsConfig, opts ...option.RequestOption) (*OpenAIInterpreter, error) {
	if llmConfig.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(llmConfig.OpenAIAPIKey)}, opts...)

	return &OpenAIInterpreter{
		client: openai.NewClient(opts...),
		config: llmConfig,
		models: modelsConfig,
	}, nil
}

func (p *OpenAIInterpreter) Name() string {
	return string(ProviderOpenAI)
}

func (p *OpenAIInterpreter) DefaultModel() string {
	return p.models.GetDefaultModel(string(ProviderOpenAI))
}

// Interpret sends the conversation to the chat completions endpoint
func (p *OpenAIInterpreter) Interpret(ctx context.Context, history []Message, prompt, model string) (string, error) {
	if model == "" {
		model = p.DefaultModel()
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(history) + 1,
	}).Info("Calling OpenAI")

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(buildConversation(p.config.SystemPrompt, history, prompt)),
		Temperature: openai.Float(p.config.Temperature),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	logger.Log.WithFields(logrus.Fields{
		"model":             model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
	}).Debug("OpenAI usage")

	return completion.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
