package session

import (
	"context"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/sqlite"
	"dream-san/internal/testutil"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteService(t *testing.T) (*SessionService, *db.User, *db.User) {
	t.Helper()
	database, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	owner, err := database.CreateUser(ctx, db.NewUser{Email: "owner@example.com"})
	require.NoError(t, err)
	other, err := database.CreateUser(ctx, db.NewUser{Email: "other@example.com"})
	require.NoError(t, err)

	return NewSessionService(database, nil), owner, other
}

func TestAppendTurn_CreateThenLoad(t *testing.T) {
	service, owner, _ := newSQLiteService(t)
	ctx := context.Background()

	id, err := service.AppendTurn(ctx, AppendTurnRequest{
		UserID:   owner.ID,
		Prompt:   "I was flying over the sea",
		Reply:    "Flying often signals freedom",
		ImageURL: "https://cdn/img.png",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session, err := service.LoadSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, db.RoleUser, session.Turns[0].Role)
	assert.Equal(t, "I was flying over the sea", session.Turns[0].Content)
	assert.Equal(t, db.RoleAssistant, session.Turns[1].Role)
	assert.Equal(t, "Flying often signals freedom", session.Turns[1].Content)
	assert.Equal(t, "https://cdn/img.png", session.Turns[1].ImageURL)
	assert.Equal(t, "https://cdn/img.png", session.ImageURL)
	assert.Equal(t, "I was flying over the sea", session.DreamText)
}

func TestAppendTurn_AppendsInOrder(t *testing.T) {
	service, owner, _ := newSQLiteService(t)
	ctx := context.Background()

	id, err := service.AppendTurn(ctx, AppendTurnRequest{UserID: owner.ID, Prompt: "p1", Reply: "r1"})
	require.NoError(t, err)

	got, err := service.AppendTurn(ctx, AppendTurnRequest{SessionID: id, UserID: owner.ID, Prompt: "p2", Reply: "r2"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	session, err := service.LoadSession(ctx, id)
	require.NoError(t, err)

	var contents []string
	for _, turn := range session.Turns {
		contents = append(contents, turn.Content)
	}
	assert.Equal(t, []string{"p1", "r1", "p2", "r2"}, contents)
	assert.Equal(t, 2, session.Version)
	assert.Equal(t, "p1", session.DreamText)
}

func TestAppendTurn_OwnershipAndMissing(t *testing.T) {
	service, owner, other := newSQLiteService(t)
	ctx := context.Background()

	id, err := service.AppendTurn(ctx, AppendTurnRequest{UserID: owner.ID, Prompt: "p", Reply: "r"})
	require.NoError(t, err)

	_, err = service.AppendTurn(ctx, AppendTurnRequest{SessionID: id, UserID: other.ID, Prompt: "p", Reply: "r"})
	assert.ErrorIs(t, err, ErrSessionForbidden)

	_, err = service.AppendTurn(ctx, AppendTurnRequest{SessionID: "missing", UserID: owner.ID, Prompt: "p", Reply: "r"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = service.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = service.LoadOwnedSession(ctx, id, other.ID)
	assert.ErrorIs(t, err, ErrSessionForbidden)

	session, err := service.LoadOwnedSession(ctx, id, owner.ID)
	require.NoError(t, err)
	assert.Len(t, session.Turns, 2)
}

func TestAppendTurn_ConcurrentAppendsLoseNothing(t *testing.T) {
	service, owner, _ := newSQLiteService(t)
	ctx := context.Background()

	id, err := service.AppendTurn(ctx, AppendTurnRequest{UserID: owner.ID, Prompt: "seed", Reply: "seed reply"})
	require.NoError(t, err)

	const writers = 6
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.AppendTurn(ctx, AppendTurnRequest{
				SessionID: id,
				UserID:    owner.ID,
				Prompt:    fmt.Sprintf("prompt-%d", i),
				Reply:     fmt.Sprintf("reply-%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrConcurrentModification)
	}

	session, err := service.LoadSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, session.Turns, 2+2*succeeded)
	for i := 2; i < len(session.Turns); i += 2 {
		var n int
		_, err := fmt.Sscanf(session.Turns[i].Content, "prompt-%d", &n)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("reply-%d", n), session.Turns[i+1].Content)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	service, owner, other := newSQLiteService(t)
	ctx := context.Background()

	first, err := service.AppendTurn(ctx, AppendTurnRequest{UserID: owner.ID, Prompt: "older", Reply: "r"})
	require.NoError(t, err)
	second, err := service.AppendTurn(ctx, AppendTurnRequest{UserID: owner.ID, Prompt: "newer", Reply: "r"})
	require.NoError(t, err)
	_, err = service.AppendTurn(ctx, AppendTurnRequest{UserID: other.ID, Prompt: "someone else", Reply: "r"})
	require.NoError(t, err)

	sessions, err := service.ListSessions(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second, sessions[0].ID)
	assert.Equal(t, first, sessions[1].ID)
}

func TestAppendTurn_RejectsEmptyTurn(t *testing.T) {
	service := NewSessionService(&testutil.MockDatabase{}, nil)

	_, err := service.AppendTurn(context.Background(), AppendTurnRequest{UserID: "u", Prompt: " ", Reply: "r"})
	if !errors.Is(err, ErrEmptyTurn) {
		t.Errorf("AppendTurn() error = %v, want ErrEmptyTurn", err)
	}
}

func TestAppendTurn_StampsTurns(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var captured []db.Turn

	mockDB := &testutil.MockDatabase{
		CreateDreamSessionFunc: func(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error) {
			captured = turns
			return &db.DreamSession{ID: "s1"}, nil
		},
	}
	service := NewSessionService(mockDB, nil)
	service.now = func() time.Time { return stamp }

	id, err := service.AppendTurn(context.Background(), AppendTurnRequest{UserID: "u", Prompt: "p", Reply: "r", ImageURL: "img"})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if id != "s1" {
		t.Errorf("AppendTurn() id = %s, want s1", id)
	}
	if len(captured) != 2 {
		t.Fatalf("CreateDreamSession got %d turns, want 2", len(captured))
	}
	for _, turn := range captured {
		if !turn.CreatedAt.Equal(stamp) {
			t.Errorf("turn %s CreatedAt = %v, want %v", turn.Role, turn.CreatedAt, stamp)
		}
	}
	if captured[0].ImageURL != "" || captured[1].ImageURL != "img" {
		t.Errorf("image URL should be on the assistant turn only, got %+v", captured)
	}
}

func TestAppendTurn_StorageErrorPropagates(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		AppendDreamTurnsFunc: func(ctx context.Context, sessionID, userID, imageURL string, turns []db.Turn) (int, error) {
			return 0, db.Unavailable("appending dream turns", errors.New("connection reset"))
		},
	}
	service := NewSessionService(mockDB, nil)

	_, err := service.AppendTurn(context.Background(), AppendTurnRequest{SessionID: "s", UserID: "u", Prompt: "p", Reply: "r"})
	if !errors.Is(err, db.ErrStorageUnavailable) {
		t.Errorf("AppendTurn() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestListSessions_Error(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		ListDreamSessionsFunc: func(ctx context.Context, userID string) ([]db.DreamSessionSummary, error) {
			return nil, errors.New("database error")
		},
	}
	service := NewSessionService(mockDB, nil)

	if _, err := service.ListSessions(context.Background(), "u"); err == nil {
		t.Error("ListSessions() error = nil, want error")
	}
}
