package sqlite

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/dbx"
	"errors"
	"strings"

	"github.com/google/uuid"
	gosqlite "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const userColumns = `id, email, first_name, last_name, avatar_url, password_hash, auth_provider,
	COALESCE(external_id, ''), token_balance, tokens_spent, is_subscribed, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*db.User, error) {
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

// userConflict tells an external identity collision apart from a taken email.
// SQLite names the violated columns in the message.
func userConflict(err error) error {
	if strings.Contains(err.Error(), "users.external_id") {
		return db.ErrIdentityTaken
	}
	return db.ErrEmailTaken
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateUser inserts the user and records a positive starting balance as a signup grant
func (s *SQLiteDB) CreateUser(ctx context.Context, newUser db.NewUser) (*db.User, error) {
	now := s.now()
	user := &db.User{
		ID:           uuid.New().String(),
		Email:        newUser.Email,
		FirstName:    newUser.FirstName,
		LastName:     newUser.LastName,
		AvatarURL:    newUser.AvatarURL,
		PasswordHash: newUser.PasswordHash,
		AuthProvider: newUser.AuthProvider,
		ExternalID:   newUser.ExternalID,
		TokenBalance: newUser.TokenBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := dbx.WithTx(ctx, s.conn, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
		INSERT INTO users (id, email, first_name, last_name, avatar_url, password_hash, auth_provider, external_id, token_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, query,
			user.ID, user.Email, user.FirstName, user.LastName, user.AvatarURL, user.PasswordHash,
			user.AuthProvider, nullIfEmpty(user.ExternalID), user.TokenBalance, now, now,
		)
		if err != nil {
			return err
		}

		if user.TokenBalance > 0 {
			_, err = s.insertTransaction(ctx, tx, user.ID, user.TokenBalance, db.KindSignup, "")
		}
		return err
	})
	if err != nil {
		if isConstraint(err, gosqlite.ErrConstraintUnique) {
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
func (s *SQLiteDB) GetUserByID(ctx context.Context, id string) (*db.User, error) {
	return s.getUser(ctx, "retrieving user", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by (already normalized) email
func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return s.getUser(ctx, "retrieving user by email", `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetUserByExternalID retrieves a user by identity provider subject
func (s *SQLiteDB) GetUserByExternalID(ctx context.Context, provider, externalID string) (*db.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE auth_provider = ? AND external_id = ?`
	return s.getUser(ctx, "retrieving user by external id", query, provider, externalID)
}

func (s *SQLiteDB) getUser(ctx context.Context, op, query string, args ...any) (*db.User, error) {
	user, err := scanUser(s.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrUserNotFound
		}
		return nil, db.Unavailable(op, err)
	}
	return user, nil
}

// UpdateUserProfile refreshes names, avatar and the linked provider identity
func (s *SQLiteDB) UpdateUserProfile(ctx context.Context, id string, profile db.UserProfile) error {
	query := `
	UPDATE users
	SET first_name = ?, last_name = ?, avatar_url = ?, auth_provider = ?, external_id = ?, updated_at = ?
	WHERE id = ?
	`

	result, err := s.conn.ExecContext(ctx, query,
		profile.FirstName, profile.LastName, profile.AvatarURL, profile.AuthProvider,
		nullIfEmpty(profile.ExternalID), s.now(), id)
	if err != nil {
		if isConstraint(err, gosqlite.ErrConstraintUnique) {
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
	return nil
}
