package llm

import "context"

// Message roles understood by every interpreter
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Interpreter turns a dream (and the earlier turns of its session) into an interpretation
type Interpreter interface {
	// Interpret sends history followed by prompt and returns the reply text.
	// An empty model selects DefaultModel.
	Interpret(ctx context.Context, history []Message, prompt, model string) (string, error)

	// Name identifies the provider in logs and metrics
	Name() string

	// DefaultModel returns the model used when the caller names none
	DefaultModel() string
}

// ImageGenerator renders an illustration and returns PNG bytes
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// buildConversation prepends the system prompt and appends the new user prompt
func buildConversation(systemPrompt string, history []Message, prompt string) []Message {
	messages := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, history...)
	return append(messages, Message{Role: RoleUser, Content: prompt})
}
