package sqlite

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/dbx"
	"errors"

	"github.com/google/uuid"
	gosqlite "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DebitTokens checks and decrements the balance in a single conditional UPDATE.
func (s *SQLiteDB) DebitTokens(ctx context.Context, userID string, amount int) (int, error) {
	query := `
	UPDATE users
	SET token_balance = token_balance - ?, tokens_spent = tokens_spent + ?, updated_at = ?
	WHERE id = ? AND token_balance >= ?
	RETURNING token_balance
	`

	var balance int
	err := s.conn.QueryRowContext(ctx, query, amount, amount, s.now(), userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, db.Unavailable("debiting tokens", err)
	}

	err = s.conn.QueryRowContext(ctx, `SELECT token_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, db.ErrUserNotFound
		}
		return 0, db.Unavailable("retrieving balance", err)
	}
	return balance, db.ErrInsufficientTokens
}

// CreditTokens increments the balance and records the credit in one transaction
func (s *SQLiteDB) CreditTokens(ctx context.Context, userID string, amount int, kind string) (int, error) {
	query := `UPDATE users SET token_balance = token_balance + ?, updated_at = ? WHERE id = ? RETURNING token_balance`
	return s.applyCredit(ctx, "crediting tokens", query, userID, amount, kind, "")
}

// RefundTokens returns a charge: balance up, tokens_spent down
func (s *SQLiteDB) RefundTokens(ctx context.Context, userID string, amount int) (int, error) {
	query := `
	UPDATE users
	SET token_balance = token_balance + ?1, tokens_spent = MAX(tokens_spent - ?1, 0), updated_at = ?2
	WHERE id = ?3
	RETURNING token_balance
	`
	return s.applyCredit(ctx, "refunding tokens", query, userID, amount, db.KindRefund, "")
}

// ActivateSubscription flags the user as subscribed and credits the grant.
// A replayed reference rolls back with ErrAlreadyApplied.
func (s *SQLiteDB) ActivateSubscription(ctx context.Context, userID string, amount int, reference string) (int, error) {
	query := `UPDATE users SET is_subscribed = 1, token_balance = token_balance + ?, updated_at = ? WHERE id = ? RETURNING token_balance`
	return s.applyCredit(ctx, "activating subscription", query, userID, amount, db.KindSubscription, reference)
}

// applyCredit expects query to take (amount, updated_at, user id) in that order.
func (s *SQLiteDB) applyCredit(ctx context.Context, op, query, userID string, amount int, kind, reference string) (int, error) {
	var balance int

	err := dbx.WithTx(ctx, s.conn, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, query, amount, s.now(), userID).Scan(&balance); err != nil {
			return err
		}
		_, err := s.insertTransaction(ctx, tx, userID, amount, kind, reference)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, db.ErrUserNotFound
		}
		if isConstraint(err, gosqlite.ErrConstraintUnique) {
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
// Each audit row goes in first under the unique reference index; a user is
// credited only when the row was new.
func (s *SQLiteDB) CreditSubscribers(ctx context.Context, amount int, period string) (int, error) {
	var credited int

	err := dbx.WithTx(ctx, s.conn, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM users WHERE is_subscribed = 1`)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := s.now()
		for _, id := range ids {
			result, err := tx.ExecContext(ctx, `
			INSERT INTO token_transactions (id, user_id, amount, kind, created_at, reference)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (reference) DO NOTHING
			`, uuid.New().String(), id, amount, db.KindMonthlyGrant, now, db.GrantReference(db.KindMonthlyGrant, period, id))
			if err != nil {
				return err
			}
			inserted, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if inserted == 0 {
				continue
			}

			_, err = tx.ExecContext(ctx,
				`UPDATE users SET token_balance = token_balance + ?, updated_at = ? WHERE id = ?`, amount, now, id)
			if err != nil {
				return err
			}
			credited++
		}
		return nil
	})
	if err != nil {
		return 0, db.Unavailable("crediting subscribers", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"amount": amount,
		"period": period,
		"users":  credited,
	}).Info("Credited subscribers")
	return credited, nil
}

// InsertTokenTransaction appends an audit row outside any balance change
func (s *SQLiteDB) InsertTokenTransaction(ctx context.Context, userID string, amount int, kind string) (*db.TokenTransaction, error) {
	transaction, err := s.insertTransaction(ctx, s.conn, userID, amount, kind, "")
	if err != nil {
		return nil, db.Unavailable("recording token transaction", err)
	}
	return transaction, nil
}

func (s *SQLiteDB) insertTransaction(ctx context.Context, q dbx.DBTX, userID string, amount int, kind, reference string) (*db.TokenTransaction, error) {
	transaction := &db.TokenTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
		CreatedAt: s.now(),
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO token_transactions (id, user_id, amount, kind, created_at, reference) VALUES (?, ?, ?, ?, ?, ?)`,
		transaction.ID, userID, amount, kind, transaction.CreatedAt, nullIfEmpty(reference))
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// ListTokenTransactions returns the newest transactions first
func (s *SQLiteDB) ListTokenTransactions(ctx context.Context, userID string, limit int) ([]db.TokenTransaction, error) {
	query := `
	SELECT id, user_id, amount, kind, created_at
	FROM token_transactions
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`

	rows, err := s.conn.QueryContext(ctx, query, userID, limit)
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
func (s *SQLiteDB) SumTokenTransactions(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT kind, COALESCE(SUM(amount), 0) FROM token_transactions WHERE user_id = ? GROUP BY kind`, userID)
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
