package session

import (
	"context"
	"dream-san/internal/logger"
	"dream-san/internal/metrics"
	"dream-san/internal/repository/db"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound        = db.ErrSessionNotFound
	ErrSessionForbidden       = db.ErrSessionForbidden
	ErrConcurrentModification = db.ErrConcurrentModification
	ErrEmptyTurn              = errors.New("prompt and reply must not be empty")
)

// AppendTurnRequest is one user prompt and the assistant reply to it
type AppendTurnRequest struct {
	SessionID string
	UserID    string
	Prompt    string
	Reply     string
	ImageURL  string
}

// SessionService stores dream sessions as append-only turn lists
type SessionService struct {
	db      db.Database
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSessionService creates a new SessionService. metrics may be nil.
func NewSessionService(database db.Database, m *metrics.Metrics) *SessionService {
	return &SessionService{
		db:      database,
		metrics: m,
		now:     time.Now,
	}
}

// AppendTurn creates a session when req.SessionID is empty, otherwise appends the
// pair to the existing session. It returns the session id.
func (s *SessionService) AppendTurn(ctx context.Context, req AppendTurnRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.Reply) == "" {
		return "", ErrEmptyTurn
	}

	now := s.now().UTC()
	turns := []db.Turn{
		{Role: db.RoleUser, Content: req.Prompt, CreatedAt: now},
		{Role: db.RoleAssistant, Content: req.Reply, ImageURL: req.ImageURL, CreatedAt: now},
	}

	if req.SessionID == "" {
		created, err := s.db.CreateDreamSession(ctx, req.UserID, req.Prompt, req.ImageURL, turns)
		s.metrics.ObserveSessionWrite("create", err)
		if err != nil {
			return "", fmt.Errorf("error creating dream session: %w", err)
		}
		return created.ID, nil
	}

	version, err := s.db.AppendDreamTurns(ctx, req.SessionID, req.UserID, req.ImageURL, turns)
	s.metrics.ObserveSessionWrite("append", err)
	if err != nil {
		if errors.Is(err, db.ErrConcurrentModification) {
			logger.Log.WithFields(logrus.Fields{
				"session_id": req.SessionID,
				"user_id":    req.UserID,
			}).Warn("Concurrent append to dream session")
		}
		return "", fmt.Errorf("error appending to dream session: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"version":    version,
	}).Debug("Appended dream turns")

	return req.SessionID, nil
}

// LoadSession returns the session with its turns in order
func (s *SessionService) LoadSession(ctx context.Context, sessionID string) (*db.DreamSession, error) {
	session, err := s.db.GetDreamSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// LoadOwnedSession loads the session and verifies userID owns it
func (s *SessionService) LoadOwnedSession(ctx context.Context, sessionID, userID string) (*db.DreamSession, error) {
	session, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionForbidden
	}
	return session, nil
}

// ListSessions returns the user's sessions, newest first
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]db.DreamSessionSummary, error) {
	sessions, err := s.db.ListDreamSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve dream sessions: %w", err)
	}
	return sessions, nil
}
