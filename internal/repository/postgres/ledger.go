package postgres

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/dbx"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DebitTokens runs process_token_transaction, which checks and decrements the
// balance in one statement. The returned balance is the post-debit balance on
// success and the untouched balance on ErrInsufficientTokens.
func (p *PostgresDB) DebitTokens(ctx context.Context, userID string, amount int) (int, error) {
	var (
		success   bool
		balance   int
		userFound bool
	)

	query := `SELECT success, balance, user_found FROM process_token_transaction($1, $2)`
	err := p.conn.QueryRowContext(ctx, query, userID, amount).Scan(&success, &balance, &userFound)
	if err != nil {
		return 0, db.Unavailable("debiting tokens", err)
	}

	if !userFound {
		return 0, db.ErrUserNotFound
	}
	if !success {
		return balance, db.ErrInsufficientTokens
	}
	return balance, nil
}

// CreditTokens increments the balance and records the credit in one transaction
func (p *PostgresDB) CreditTokens(ctx context.Context, userID string, amount int, kind string) (int, error) {
	query := `
	UPDATE users SET token_balance = token_balance + $2, updated_at = NOW()
	WHERE id = $1
	RETURNING token_balance
	`
	return p.applyCredit(ctx, "crediting tokens", query, userID, amount, kind, "")
}

// RefundTokens returns a charge: balance up, tokens_spent down
func (p *PostgresDB) RefundTokens(ctx context.Context, userID string, amount int) (int, error) {
	query := `
	UPDATE users
	SET token_balance = token_balance + $2,
	    tokens_spent = GREATEST(tokens_spent - $2, 0),
	    updated_at = NOW()
	WHERE id = $1
	RETURNING token_balance
	`
	return p.applyCredit(ctx, "refunding tokens", query, userID, amount, db.KindRefund, "")
}

// ActivateSubscription flags the user as subscribed and credits the grant.
// The audit row carries reference, so a replayed payment rolls back with ErrAlreadyApplied.
func (p *PostgresDB) ActivateSubscription(ctx context.Context, userID string, amount int, reference string) (int, error) {
	query := `
	UPDATE users
	SET is_subscribed = TRUE, token_balance = token_balance + $2, updated_at = NOW()
	WHERE id = $1
	RETURNING token_balance
	`
	return p.applyCredit(ctx, "activating subscription", query, userID, amount, db.KindSubscription, reference)
}

func (p *PostgresDB) applyCredit(ctx context.Context, op, query, userID string, amount int, kind, reference string) (int, error) {
	var balance int

	err := dbx.WithTx(ctx, p.conn, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, query, userID, amount).Scan(&balance); err != nil {
			return err
		}
		_, err := insertTransaction(ctx, tx, userID, amount, kind, reference)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, db.ErrUserNotFound
		}
		if pqCode(err) == uniqueViolation {
			return 0, db.ErrAlreadyApplied
		}
		return 0, db.Unavailable(op, err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount,
		"kind":    kind,
		"balance": balance,
	}).Info("Credited tokens")

	return balance, nil
}

// CreditSubscribers grants amount to every subscribed user not yet credited for period.
// Audit rows are inserted first under the unique reference index and only the
// users whose row went in are credited, so replays and concurrent runs credit nobody twice.
func (p *PostgresDB) CreditSubscribers(ctx context.Context, amount int, period string) (int, error) {
	query := `
	WITH granted AS (
		INSERT INTO token_transactions (id, user_id, amount, kind, reference)
		SELECT gen_random_uuid()::text, id, $1::int, $2::text, $3::text || id
		FROM users
		WHERE is_subscribed
		ON CONFLICT (reference) DO NOTHING
		RETURNING user_id
	)
	UPDATE users SET token_balance = token_balance + $1::int, updated_at = NOW()
	FROM granted
	WHERE users.id = granted.user_id
	`

	prefix := db.GrantReference(db.KindMonthlyGrant, period, "")
	result, err := p.conn.ExecContext(ctx, query, amount, db.KindMonthlyGrant, prefix)
	if err != nil {
		return 0, db.Unavailable("crediting subscribers", err)
	}

	credited, err := result.RowsAffected()
	if err != nil {
		return 0, db.Unavailable("crediting subscribers", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"amount": amount,
		"period": period,
		"users":  credited,
	}).Info("Credited subscribers")
	return int(credited), nil
}

// InsertTokenTransaction appends an audit row outside any balance change
func (p *PostgresDB) InsertTokenTransaction(ctx context.Context, userID string, amount int, kind string) (*db.TokenTransaction, error) {
	transaction, err := insertTransaction(ctx, p.conn, userID, amount, kind, "")
	if err != nil {
		return nil, db.Unavailable("recording token transaction", err)
	}
	return transaction, nil
}

func insertTransaction(ctx context.Context, q dbx.DBTX, userID string, amount int, kind, reference string) (*db.TokenTransaction, error) {
	transaction := &db.TokenTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
	}

	query := `
	INSERT INTO token_transactions (id, user_id, amount, kind, reference)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	RETURNING created_at
	`
	if err := q.QueryRowContext(ctx, query, transaction.ID, userID, amount, kind, reference).Scan(&transaction.CreatedAt); err != nil {
		return nil, err
	}
	return transaction, nil
}

// ListTokenTransactions returns the newest transactions first
func (p *PostgresDB) ListTokenTransactions(ctx context.Context, userID string, limit int) ([]db.TokenTransaction, error) {
	query := `
	SELECT id, user_id, amount, kind, created_at
	FROM token_transactions
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := p.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, db.Unavailable("listing token transactions", err)
	}
	defer rows.Close()

	var transactions []db.TokenTransaction
	for rows.Next() {
		var t db.TokenTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.CreatedAt); err != nil {
			return nil, db.Unavailable("scanning token transaction", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("listing token transactions", err)
	}

	return transactions, nil
}

// SumTokenTransactions totals the audit trail per kind
func (p *PostgresDB) SumTokenTransactions(ctx context.Context, userID string) (map[string]int, error) {
	query := `
	SELECT kind, COALESCE(SUM(amount), 0)
	FROM token_transactions
	WHERE user_id = $1
	GROUP BY kind
	`

	rows, err := p.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, db.Unavailable("summing token transactions", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			kind  string
			total int
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, db.Unavailable("scanning token totals", err)
		}
		totals[kind] = total
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("summing token transactions", err)
	}

	return totals, nil
}
