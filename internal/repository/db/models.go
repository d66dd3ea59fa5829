package db

import "time"

// Token transaction kinds
const (
	KindQuery        = "query"
	KindRefund       = "refund"
	KindSignup       = "signup"
	KindSubscription = "subscription"
	KindMonthlyGrant = "monthly_grant"
	KindManual       = "manual"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents an account and its token balance
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	AvatarURL    string
	PasswordHash string
	AuthProvider string
	ExternalID   string
	TokenBalance int
	TokensSpent  int
	IsSubscribed bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser holds the fields of a user about to be created.
// A positive TokenBalance is recorded as a signup grant.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	AvatarURL    string
	PasswordHash string
	AuthProvider string
	ExternalID   string
	TokenBalance int
}

// UserProfile holds identity fields refreshed on every provider login
type UserProfile struct {
	FirstName    string
	LastName     string
	AvatarURL    string
	AuthProvider string
	ExternalID   string
}

// TokenTransaction is an immutable ledger entry. Negative amounts are spend.
type TokenTransaction struct {
	ID        string
	UserID    string
	Amount    int
	Kind      string
	Reference string
	CreatedAt time.Time
}

// GrantReference keys a periodic grant so it applies once per user and period
func GrantReference(kind, period, userID string) string {
	return kind + ":" + period + ":" + userID
}

// Turn is one entry of a dream session
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DreamSession is one interpretation thread
type DreamSession struct {
	ID        string
	UserID    string
	DreamText string
	ImageURL  string
	Turns     []Turn
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DreamSessionSummary is a history list entry
type DreamSessionSummary struct {
	ID        string
	DreamText string
	ImageURL  string
	CreatedAt time.Time
}

// Stats holds admin dashboard totals
type Stats struct {
	TotalUsers  int
	Subscribers int
	Sessions    int
	TokensSpent int64
}
