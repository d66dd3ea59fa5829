// Package dbx holds the transaction helper shared by the SQL repositories.
package dbx

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic; panics are rethrown.
func WithTx(ctx context.Context, conn *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx)
			panic(p)
		}
		if err != nil {
			rollback(tx)
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Log.WithError(err).Warn("Transaction rollback failed")
	}
}
