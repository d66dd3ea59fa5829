package db

import "context"

// Database defines every storage operation the services need.
// Balance changes are applied storage-side; callers never read, compute and write back.
type Database interface {
	// Users
	CreateUser(ctx context.Context, user NewUser) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByExternalID(ctx context.Context, provider, externalID string) (*User, error)
	UpdateUserProfile(ctx context.Context, id string, profile UserProfile) error

	// Ledger
	DebitTokens(ctx context.Context, userID string, amount int) (int, error)
	CreditTokens(ctx context.Context, userID string, amount int, kind string) (int, error)
	RefundTokens(ctx context.Context, userID string, amount int) (int, error)
	// reference identifies the payment; replaying it returns ErrAlreadyApplied
	ActivateSubscription(ctx context.Context, userID string, amount int, reference string) (int, error)
	// CreditSubscribers credits each subscriber at most once per period
	CreditSubscribers(ctx context.Context, amount int, period string) (int, error)
	InsertTokenTransaction(ctx context.Context, userID string, amount int, kind string) (*TokenTransaction, error)
	ListTokenTransactions(ctx context.Context, userID string, limit int) ([]TokenTransaction, error)
	SumTokenTransactions(ctx context.Context, userID string) (map[string]int, error)

	// Dream sessions
	CreateDreamSession(ctx context.Context, userID, dreamText, imageURL string, turns []Turn) (*DreamSession, error)
	AppendDreamTurns(ctx context.Context, sessionID, userID, imageURL string, turns []Turn) (int, error)
	GetDreamSession(ctx context.Context, id string) (*DreamSession, error)
	ListDreamSessions(ctx context.Context, userID string) ([]DreamSessionSummary, error)

	// Admin
	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}
