package sqlite

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/dbx"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	gosqlite "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// CreateDreamSession inserts a session seeded with its first turns
func (s *SQLiteDB) CreateDreamSession(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error) {
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("error encoding turns: %w", err)
	}

	now := s.now()
	session := &db.DreamSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		DreamText: dreamText,
		ImageURL:  imageURL,
		Turns:     turns,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.conn.ExecContext(ctx, `
	INSERT INTO dream_sessions (id, user_id, dream_text, image_url, turns, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, session.ID, userID, dreamText, imageURL, string(turnsJSON), now, now)
	if err != nil {
		if isConstraint(err, gosqlite.ErrConstraintForeignKey) {
			return nil, db.ErrUserNotFound
		}
		return nil, db.Unavailable("creating dream session", err)
	}

	logger.Log.WithFields(logrus.Fields{"session_id": session.ID, "user_id": userID}).Info("Created new dream session")
	return session, nil
}

// AppendDreamTurns reads, appends and writes back under the write lock of an
// IMMEDIATE transaction. The write is also guarded by the version read, so a
// writer that slipped in between surfaces as ErrConcurrentModification.
func (s *SQLiteDB) AppendDreamTurns(ctx context.Context, sessionID, userID, imageURL string, turns []db.Turn) (int, error) {
	var version int

	err := dbx.WithTx(ctx, s.conn, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			owner        string
			turnsJSON    string
			current      int
			currentImage string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, turns, version, image_url FROM dream_sessions WHERE id = ?`, sessionID).
			Scan(&owner, &turnsJSON, &current, &currentImage)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return db.ErrSessionNotFound
			}
			return err
		}
		if owner != userID {
			return db.ErrSessionForbidden
		}

		var existing []db.Turn
		if err := json.Unmarshal([]byte(turnsJSON), &existing); err != nil {
			return fmt.Errorf("error decoding turns of session %s: %w", sessionID, err)
		}
		updated, err := json.Marshal(append(existing, turns...))
		if err != nil {
			return fmt.Errorf("error encoding turns: %w", err)
		}

		if currentImage == "" {
			currentImage = imageURL
		}

		result, err := tx.ExecContext(ctx, `
		UPDATE dream_sessions
		SET turns = ?, version = version + 1, image_url = ?, updated_at = ?
		WHERE id = ? AND version = ?
		`, string(updated), currentImage, s.now(), sessionID, current)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return db.ErrConcurrentModification
		}

		version = current + 1
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, db.ErrSessionNotFound),
			errors.Is(err, db.ErrSessionForbidden),
			errors.Is(err, db.ErrConcurrentModification):
			return 0, err
		}
		return 0, db.Unavailable("appending dream turns", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"turns":      len(turns),
		"version":    version,
	}).Debug("Appended dream turns")

	return version, nil
}

// GetDreamSession retrieves a session with its full turn list
func (s *SQLiteDB) GetDreamSession(ctx context.Context, id string) (*db.DreamSession, error) {
	var (
		session   db.DreamSession
		turnsJSON string
	)
	err := s.conn.QueryRowContext(ctx, `
	SELECT id, user_id, dream_text, image_url, turns, version, created_at, updated_at
	FROM dream_sessions
	WHERE id = ?
	`, id).Scan(
		&session.ID, &session.UserID, &session.DreamText, &session.ImageURL,
		&turnsJSON, &session.Version, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrSessionNotFound
		}
		return nil, db.Unavailable("retrieving dream session", err)
	}

	if err := json.Unmarshal([]byte(turnsJSON), &session.Turns); err != nil {
		return nil, fmt.Errorf("error decoding turns of session %s: %w", id, err)
	}
	return &session, nil
}

// ListDreamSessions returns the user's sessions, newest first
func (s *SQLiteDB) ListDreamSessions(ctx context.Context, userID string) ([]db.DreamSessionSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, dream_text, image_url, created_at
	FROM dream_sessions
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, db.Unavailable("listing dream sessions", err)
	}
	defer rows.Close()

	var sessions []db.DreamSessionSummary
	for rows.Next() {
		var summary db.DreamSessionSummary
		if err := rows.Scan(&summary.ID, &summary.DreamText, &summary.ImageURL, &summary.CreatedAt); err != nil {
			return nil, db.Unavailable("scanning dream session", err)
		}
		sessions = append(sessions, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("listing dream sessions", err)
	}
	return sessions, nil
}

// GetStats returns admin dashboard totals
func (s *SQLiteDB) GetStats(ctx context.Context) (*db.Stats, error) {
	var stats db.Stats
	err := s.conn.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM users WHERE is_subscribed = 1),
		(SELECT COUNT(*) FROM dream_sessions),
		(SELECT COALESCE(SUM(tokens_spent), 0) FROM users)
	`).Scan(&stats.TotalUsers, &stats.Subscribers, &stats.Sessions, &stats.TokensSpent)
	if err != nil {
		return nil, db.Unavailable("retrieving stats", err)
	}
	return &stats, nil
}
