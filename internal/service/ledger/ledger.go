package ledger

import (
	"context"
	"dream-san/internal/logger"
	"dream-san/internal/metrics"
	"dream-san/internal/repository/db"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientTokens = db.ErrInsufficientTokens
	ErrUserNotFound       = db.ErrUserNotFound
	ErrStorageUnavailable = db.ErrStorageUnavailable
	ErrInvalidAmount      = errors.New("token amount must be positive")
	ErrMissingReference   = errors.New("credit reference is required")
	ErrAlreadyApplied     = db.ErrAlreadyApplied
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Receipt describes a successful charge
type Receipt struct {
	UserID       string
	Cost         int
	BalanceAfter int
}

// Reconciliation compares the balance columns with the audit trail
type Reconciliation struct {
	UserID       string
	Balance      int
	TokensSpent  int
	AuditedNet   int
	AuditedSpend int
	Consistent   bool
}

// Ledger meters queries against user token balances
type Ledger struct {
	db        db.Database
	estimator CostEstimator
	metrics   *metrics.Metrics
}

// NewLedger creates a ledger. metrics may be nil.
func NewLedger(database db.Database, estimator CostEstimator, m *metrics.Metrics) *Ledger {
	return &Ledger{
		db:        database,
		estimator: estimator,
		metrics:   m,
	}
}

// EstimateCost prices text with the configured estimator
func (l *Ledger) EstimateCost(text string) int {
	return l.estimator.EstimateCost(text)
}

// HasSufficientBalance reports whether user can afford text right now.
// Only Charge is authoritative; the balance may change before it runs.
func (l *Ledger) HasSufficientBalance(user *db.User, text string) bool {
	if user == nil {
		return false
	}
	return user.TokenBalance >= l.EstimateCost(text)
}

// Charge debits the estimated cost of text in one storage-side conditional
// decrement and then records the spend. A failed audit insert is logged and
// the debit stands.
func (l *Ledger) Charge(ctx context.Context, userID, text string) (*Receipt, error) {
	cost := l.EstimateCost(text)

	balance, err := l.db.DebitTokens(ctx, userID, cost)
	if err != nil {
		l.metrics.ObserveCharge(chargeResult(err), cost)
		fields := logrus.Fields{"user_id": userID, "cost": cost}
		if errors.Is(err, db.ErrInsufficientTokens) {
			fields["balance"] = balance
			logger.Log.WithFields(fields).Info("Charge rejected: insufficient tokens")
		} else {
			logger.Log.WithFields(fields).WithError(err).Warn("Charge failed")
		}
		return nil, fmt.Errorf("error charging %d tokens: %w", cost, err)
	}
	l.metrics.ObserveCharge("success", cost)

	// The debit is committed; the audit row must not depend on the caller still waiting.
	auditCtx := context.WithoutCancel(ctx)
	if _, err := l.db.InsertTokenTransaction(auditCtx, userID, -cost, db.KindQuery); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  -cost,
		}).WithError(err).Error("Failed to record token transaction after debit")
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"cost":    cost,
		"balance": balance,
	}).Info("Charged tokens")

	return &Receipt{UserID: userID, Cost: cost, BalanceAfter: balance}, nil
}

func chargeResult(err error) string {
	switch {
	case errors.Is(err, db.ErrInsufficientTokens):
		return "insufficient"
	case errors.Is(err, db.ErrUserNotFound):
		return "user_not_found"
	default:
		return "error"
	}
}

// RecordCredit adds amount to the balance; the credit is audited atomically with it
func (l *Ledger) RecordCredit(ctx context.Context, userID string, amount int, kind string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if kind == "" {
		kind = db.KindManual
	}

	balance, err := l.db.CreditTokens(ctx, userID, amount, kind)
	if err != nil {
		return 0, fmt.Errorf("error crediting %d tokens: %w", amount, err)
	}
	l.metrics.ObserveCredit(kind, amount)
	return balance, nil
}

// Refund returns a charge whose interpretation was never delivered
func (l *Ledger) Refund(ctx context.Context, receipt *Receipt, reason string) (int, error) {
	if receipt == nil || receipt.Cost <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := l.db.RefundTokens(ctx, receipt.UserID, receipt.Cost)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": receipt.UserID,
			"cost":    receipt.Cost,
			"reason":  reason,
		}).WithError(err).Error("Refund failed")
		return 0, fmt.Errorf("error refunding %d tokens: %w", receipt.Cost, err)
	}
	l.metrics.ObserveCredit(db.KindRefund, receipt.Cost)

	logger.Log.WithFields(logrus.Fields{
		"user_id": receipt.UserID,
		"cost":    receipt.Cost,
		"reason":  reason,
		"balance": balance,
	}).Info("Refunded charge")

	return balance, nil
}

// ActivateSubscription marks the user subscribed and credits the grant once per payment reference
func (l *Ledger) ActivateSubscription(ctx context.Context, userID string, grant int, reference string) (int, error) {
	if grant <= 0 {
		return 0, ErrInvalidAmount
	}
	if reference == "" {
		return 0, ErrMissingReference
	}

	balance, err := l.db.ActivateSubscription(ctx, userID, grant, reference)
	if err != nil {
		return 0, fmt.Errorf("error activating subscription: %w", err)
	}
	l.metrics.ObserveCredit(db.KindSubscription, grant)
	return balance, nil
}

// GrantSubscribers credits amount to every subscribed user not yet granted for period
// and returns how many were credited by this call
func (l *Ledger) GrantSubscribers(ctx context.Context, amount int, period string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if period == "" {
		return 0, ErrMissingReference
	}

	credited, err := l.db.CreditSubscribers(ctx, amount, period)
	if err != nil {
		return 0, fmt.Errorf("error granting subscribers: %w", err)
	}
	l.metrics.ObserveCredit(db.KindMonthlyGrant, amount*credited)
	return credited, nil
}

// History lists the user's transactions, newest first
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]db.TokenTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return l.db.ListTokenTransactions(ctx, userID, limit)
}

// Reconcile checks the balance and tokens_spent columns against the audit trail
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	user, err := l.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	totals, err := l.db.SumTokenTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	net := 0
	for _, total := range totals {
		net += total
	}
	spend := -totals[db.KindQuery] - totals[db.KindRefund]

	report := &Reconciliation{
		UserID:       userID,
		Balance:      user.TokenBalance,
		TokensSpent:  user.TokensSpent,
		AuditedNet:   net,
		AuditedSpend: spend,
		Consistent:   net == user.TokenBalance && spend == user.TokensSpent,
	}

	if !report.Consistent {
		logger.Log.WithFields(logrus.Fields{
			"user_id":       userID,
			"balance":       report.Balance,
			"audited_net":   net,
			"tokens_spent":  report.TokensSpent,
			"audited_spend": spend,
		}).Warn("Ledger out of balance with audit trail")
	}

	return report, nil
}
