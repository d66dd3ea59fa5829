package postgres

import (
	"context"
	"database/sql"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateDreamSession inserts a session seeded with its first turns
func (p *PostgresDB) CreateDreamSession(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error) {
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("error encoding turns: %w", err)
	}

	session := &db.DreamSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		DreamText: dreamText,
		ImageURL:  imageURL,
		Turns:     turns,
	}

	query := `
	INSERT INTO dream_sessions (id, user_id, dream_text, image_url, turns)
	VALUES ($1, $2, $3, $4, $5::jsonb)
	RETURNING version, created_at, updated_at
	`

	err = p.conn.QueryRowContext(ctx, query, session.ID, userID, dreamText, imageURL, string(turnsJSON)).
		Scan(&session.Version, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return nil, db.ErrUserNotFound
		}
		return nil, db.Unavailable("creating dream session", err)
	}

	logger.Log.WithFields(logrus.Fields{"session_id": session.ID, "user_id": userID}).Info("Created new dream session")

	return session, nil
}

// AppendDreamTurns concatenates turns onto the stored array in a single UPDATE,
// so concurrent appends are serialized by the row lock and none are lost.
// The session image is only set when it is still empty.
func (p *PostgresDB) AppendDreamTurns(ctx context.Context, sessionID, userID, imageURL string, turns []db.Turn) (int, error) {
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return 0, fmt.Errorf("error encoding turns: %w", err)
	}

	query := `
	UPDATE dream_sessions
	SET turns = turns || $3::jsonb,
	    version = version + 1,
	    image_url = CASE WHEN image_url = '' THEN $4 ELSE image_url END,
	    updated_at = NOW()
	WHERE id = $1 AND user_id = $2
	RETURNING version
	`

	var version int
	err = p.conn.QueryRowContext(ctx, query, sessionID, userID, string(turnsJSON), imageURL).Scan(&version)
	if err == nil {
		logger.Log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"turns":      len(turns),
			"version":    version,
		}).Debug("Appended dream turns")
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, db.Unavailable("appending dream turns", err)
	}

	var owner string
	err = p.conn.QueryRowContext(ctx, `SELECT user_id FROM dream_sessions WHERE id = $1`, sessionID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, db.ErrSessionNotFound
		}
		return 0, db.Unavailable("retrieving dream session owner", err)
	}
	return 0, db.ErrSessionForbidden
}

// GetDreamSession retrieves a session with its full turn list
func (p *PostgresDB) GetDreamSession(ctx context.Context, id string) (*db.DreamSession, error) {
	query := `
	SELECT id, user_id, dream_text, image_url, turns, version, created_at, updated_at
	FROM dream_sessions
	WHERE id = $1
	`

	var (
		session   db.DreamSession
		turnsJSON []byte
	)
	err := p.conn.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.DreamText, &session.ImageURL,
		&turnsJSON, &session.Version, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrSessionNotFound
		}
		return nil, db.Unavailable("retrieving dream session", err)
	}

	if err := json.Unmarshal(turnsJSON, &session.Turns); err != nil {
		return nil, fmt.Errorf("error decoding turns of session %s: %w", id, err)
	}

	return &session, nil
}

// ListDreamSessions returns the user's sessions, newest first
func (p *PostgresDB) ListDreamSessions(ctx context.Context, userID string) ([]db.DreamSessionSummary, error) {
	query := `
	SELECT id, dream_text, image_url, created_at
	FROM dream_sessions
	WHERE user_id = $1
	ORDER BY created_at DESC
	`

	rows, err := p.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, db.Unavailable("listing dream sessions", err)
	}
	defer rows.Close()

	var sessions []db.DreamSessionSummary
	for rows.Next() {
		var s db.DreamSessionSummary
		if err := rows.Scan(&s.ID, &s.DreamText, &s.ImageURL, &s.CreatedAt); err != nil {
			return nil, db.Unavailable("scanning dream session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("listing dream sessions", err)
	}

	return sessions, nil
}

// GetStats returns admin dashboard totals
func (p *PostgresDB) GetStats(ctx context.Context) (*db.Stats, error) {
	query := `
	SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM users WHERE is_subscribed),
		(SELECT COUNT(*) FROM dream_sessions),
		(SELECT COALESCE(SUM(tokens_spent), 0) FROM users)
	`

	var stats db.Stats
	err := p.conn.QueryRowContext(ctx, query).Scan(&stats.TotalUsers, &stats.Subscribers, &stats.Sessions, &stats.TokensSpent)
	if err != nil {
		return nil, db.Unavailable("retrieving stats", err)
	}
	return &stats, nil
}
