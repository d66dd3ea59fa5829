package testutil

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/llm"
	"errors"
	"time"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// User mocks
	CreateUserFunc          func(ctx context.Context, user db.NewUser) (*db.User, error)
	GetUserByIDFunc         func(ctx context.Context, id string) (*db.User, error)
	GetUserByEmailFunc      func(ctx context.Context, email string) (*db.User, error)
	GetUserByExternalIDFunc func(ctx context.Context, provider, externalID string) (*db.User, error)
	UpdateUserProfileFunc   func(ctx context.Context, id string, profile db.UserProfile) error

	// Ledger mocks
	DebitTokensFunc            func(ctx context.Context, userID string, amount int) (int, error)
	CreditTokensFunc           func(ctx context.Context, userID string, amount int, kind string) (int, error)
	RefundTokensFunc           func(ctx context.Context, userID string, amount int) (int, error)
	ActivateSubscriptionFunc   func(ctx context.Context, userID string, amount int, reference string) (int, error)
	CreditSubscribersFunc      func(ctx context.Context, amount int, period string) (int, error)
	InsertTokenTransactionFunc func(ctx context.Context, userID string, amount int, kind string) (*db.TokenTransaction, error)
	ListTokenTransactionsFunc  func(ctx context.Context, userID string, limit int) ([]db.TokenTransaction, error)
	SumTokenTransactionsFunc   func(ctx context.Context, userID string) (map[string]int, error)

	// Dream session mocks
	CreateDreamSessionFunc func(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error)
	AppendDreamTurnsFunc   func(ctx context.Context, sessionID, userID, imageURL string, turns []db.Turn) (int, error)
	GetDreamSessionFunc    func(ctx context.Context, id string) (*db.DreamSession, error)
	ListDreamSessionsFunc  func(ctx context.Context, userID string) ([]db.DreamSessionSummary, error)

	// Admin mocks
	GetStatsFunc func(ctx context.Context) (*db.Stats, error)
}

var errNotImplemented = errors.New("not implemented")

// User methods
func (m *MockDatabase) CreateUser(ctx context.Context, user db.NewUser) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetUserByID(ctx context.Context, id string) (*db.User, error) {
	if m.GetUserByIDFunc != nil {
		return m.GetUserByIDFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) GetUserByExternalID(ctx context.Context, provider, externalID string) (*db.User, error) {
	if m.GetUserByExternalIDFunc != nil {
		return m.GetUserByExternalIDFunc(ctx, provider, externalID)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) UpdateUserProfile(ctx context.Context, id string, profile db.UserProfile) error {
	if m.UpdateUserProfileFunc != nil {
		return m.UpdateUserProfileFunc(ctx, id, profile)
	}
	return errNotImplemented
}

// Ledger methods
func (m *MockDatabase) DebitTokens(ctx context.Context, userID string, amount int) (int, error) {
	if m.DebitTokensFunc != nil {
		return m.DebitTokensFunc(ctx, userID, amount)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) CreditTokens(ctx context.Context, userID string, amount int, kind string) (int, error) {
	if m.CreditTokensFunc != nil {
		return m.CreditTokensFunc(ctx, userID, amount, kind)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) RefundTokens(ctx context.Context, userID string, amount int) (int, error) {
	if m.RefundTokensFunc != nil {
		return m.RefundTokensFunc(ctx, userID, amount)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) ActivateSubscription(ctx context.Context, userID string, amount int, reference string) (int, error) {
	if m.ActivateSubscriptionFunc != nil {
		return m.ActivateSubscriptionFunc(ctx, userID, amount, reference)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) CreditSubscribers(ctx context.Context, amount int, period string) (int, error) {
	if m.CreditSubscribersFunc != nil {
		return m.CreditSubscribersFunc(ctx, amount, period)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) InsertTokenTransaction(ctx context.Context, userID string, amount int, kind string) (*db.TokenTransaction, error) {
	if m.InsertTokenTransactionFunc != nil {
		return m.InsertTokenTransactionFunc(ctx, userID, amount, kind)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) ListTokenTransactions(ctx context.Context, userID string, limit int) ([]db.TokenTransaction, error) {
	if m.ListTokenTransactionsFunc != nil {
		return m.ListTokenTransactionsFunc(ctx, userID, limit)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) SumTokenTransactions(ctx context.Context, userID string) (map[string]int, error) {
	if m.SumTokenTransactionsFunc != nil {
		return m.SumTokenTransactionsFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

// Dream session methods
func (m *MockDatabase) CreateDreamSession(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error) {
	if m.CreateDreamSessionFunc != nil {
		return m.CreateDreamSessionFunc(ctx, userID, dreamText, imageURL, turns)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) AppendDreamTurns(ctx context.Context, sessionID, userID, imageURL string, turns []db.Turn) (int, error) {
	if m.AppendDreamTurnsFunc != nil {
		return m.AppendDreamTurnsFunc(ctx, sessionID, userID, imageURL, turns)
	}
	return 0, errNotImplemented
}

func (m *MockDatabase) GetDreamSession(ctx context.Context, id string) (*db.DreamSession, error) {
	if m.GetDreamSessionFunc != nil {
		return m.GetDreamSessionFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) ListDreamSessions(ctx context.Context, userID string) ([]db.DreamSessionSummary, error) {
	if m.ListDreamSessionsFunc != nil {
		return m.ListDreamSessionsFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

// Admin methods
func (m *MockDatabase) GetStats(ctx context.Context) (*db.Stats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *MockDatabase) Close() error {
	return nil
}

// MockInterpreter is a mock implementation of llm.Interpreter for testing
type MockInterpreter struct {
	InterpretFunc func(ctx context.Context, history []llm.Message, prompt, model string) (string, error)
	NameValue     string
	DefaultValue  string
}

func (m *MockInterpreter) Interpret(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
	if m.InterpretFunc != nil {
		return m.InterpretFunc(ctx, history, prompt, model)
	}
	return "", errNotImplemented
}

func (m *MockInterpreter) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

func (m *MockInterpreter) DefaultModel() string {
	if m.DefaultValue != "" {
		return m.DefaultValue
	}
	return "mock-model"
}

// MockImageGenerator is a mock implementation of llm.ImageGenerator for testing
type MockImageGenerator struct {
	GenerateImageFunc func(ctx context.Context, prompt string) ([]byte, error)
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, prompt)
	}
	return nil, errNotImplemented
}

// MockImageStore records uploads and returns a predictable URL
type MockImageStore struct {
	PutFunc func(ctx context.Context, userID string, png []byte) (string, error)
}

func (m *MockImageStore) Put(ctx context.Context, userID string, png []byte) (string, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, userID, png)
	}
	return "", errNotImplemented
}

// NewMockConfig returns an AppConfig with the production ledger defaults
func NewMockConfig() *config.AppConfig {
	return &config.AppConfig{
		Auth: config.AuthConfig{
			JWTSecret:       []byte("test-secret-test-secret-test-secret!"),
			TokenExpiration: time.Hour,
			ProviderSecret:  []byte("provider-secret-provider-secret!!"),
			ProviderName:    "kinde",
		},
		Ledger: config.LedgerConfig{
			CharRate:          0.1,
			MinFloor:          10,
			SignupGrant:       250,
			SubscriptionGrant: 1500,
			MonthlyGrant:      1500,
		},
		LLM: config.LLMConfig{
			Provider:     "openai",
			OpenAIAPIKey: "test-api-key",
			SystemPrompt: "You interpret dreams.",
			Temperature:  0.8,
			Timeout:      5 * time.Second,
		},
		Images: config.ImagesConfig{
			Enabled:        true,
			Model:          "dall-e-3",
			PromptTemplate: "Illustrate: %s",
		},
		Cron: config.CronConfig{
			Secret: "cron-secret",
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             100,
		},
		Admin: config.AdminConfig{
			Emails: []string{"admin@dreamsan.app"},
		},
		Models: config.NewModelsConfigFromList([]config.Model{
			{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai"},
			{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai"},
		}),
	}
}
