package postgres

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/dbx"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const userColumns = `id, email, first_name, last_name, avatar_url, password_hash, auth_provider,
	COALESCE(external_id, ''), token_balance, tokens_spent, is_subscribed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*db.User, error) {
	var user db.User
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.AvatarURL,
		&user.PasswordHash, &user.AuthProvider, &user.ExternalID,
		&user.TokenBalance, &user.TokensSpent, &user.IsSubscribed,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// userConflict tells an external identity collision apart from a taken email
func userConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == externalIdentityIndex {
		return db.ErrIdentityTaken
	}
	return db.ErrEmailTaken
}

// CreateUser inserts the user and records a positive starting balance as a signup grant
func (p *PostgresDB) CreateUser(ctx context.Context, newUser db.NewUser) (*db.User, error) {
	var user *db.User

	err := dbx.WithTx(ctx, p.conn, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
		INSERT INTO users (id, email, first_name, last_name, avatar_url, password_hash, auth_provider, external_id, token_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING ` + userColumns

		created, err := scanUser(tx.QueryRowContext(ctx, query,
			uuid.New().String(), newUser.Email, newUser.FirstName, newUser.LastName, newUser.AvatarURL,
			newUser.PasswordHash, newUser.AuthProvider, newUser.ExternalID, newUser.TokenBalance,
		))
		if err != nil {
			return err
		}

		if newUser.TokenBalance > 0 {
			if _, err := insertTransaction(ctx, tx, created.ID, newUser.TokenBalance, db.KindSignup, ""); err != nil {
				return err
			}
		}

		user = created
		return nil
	})
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return nil, userConflict(err)
		}
		return nil, db.Unavailable("creating user", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       user.ID,
		"auth_provider": user.AuthProvider,
		"token_balance": user.TokenBalance,
	}).Info("Created new user")

	return user, nil
}

// GetUserByID retrieves a user by id
func (p *PostgresDB) GetUserByID(ctx context.Context, id string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return p.getUser(ctx, "retrieving user", query, id)
}

// GetUserByEmail retrieves a user by (already normalized) email
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return p.getUser(ctx, "retrieving user by email", query, email)
}

// GetUserByExternalID retrieves a user by identity provider subject
func (p *PostgresDB) GetUserByExternalID(ctx context.Context, provider, externalID string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE auth_provider = $1 AND external_id = $2`
	return p.getUser(ctx, "retrieving user by external id", query, provider, externalID)
}

func (p *PostgresDB) getUser(ctx context.Context, op, query string, args ...any) (*db.User, error) {
	user, err := scanUser(p.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrUserNotFound
		}
		return nil, db.Unavailable(op, err)
	}
	return user, nil
}

// UpdateUserProfile refreshes names, avatar and the linked provider identity
func (p *PostgresDB) UpdateUserProfile(ctx context.Context, id string, profile db.UserProfile) error {
	query := `
	UPDATE users
	SET first_name = $2, last_name = $3, avatar_url = $4,
	    auth_provider = $5, external_id = NULLIF($6, ''), updated_at = NOW()
	WHERE id = $1
	`

	result, err := p.conn.ExecContext(ctx, query, id,
		profile.FirstName, profile.LastName, profile.AvatarURL, profile.AuthProvider, profile.ExternalID)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return userConflict(err)
		}
		return db.Unavailable("updating user profile", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return db.Unavailable("updating user profile", err)
	}
	if affected == 0 {
		return db.ErrUserNotFound
	}

	logger.Log.WithField("user_id", id).Debug("Updated user profile")
	return nil
}
