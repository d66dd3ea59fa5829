package dream

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/sqlite"
	"dream-san/internal/service/ledger"
	"dream-san/internal/service/llm"
	"dream-san/internal/service/session"
	"dream-san/internal/testutil"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	database    *sqlite.SQLiteDB
	service     *DreamService
	interpreter *testutil.MockInterpreter
	user        *db.User
}

func newFixture(t *testing.T, balance int) *fixture {
	t.Helper()
	database, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "dreams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	user, err := database.CreateUser(context.Background(), db.NewUser{Email: "dreamer@example.com", TokenBalance: balance})
	require.NoError(t, err)

	cfg := testutil.NewMockConfig()
	cfg.Models = config.NewModelsConfigFromList([]config.Model{{ID: "mock-model", Provider: "mock"}})

	interpreter := &testutil.MockInterpreter{
		InterpretFunc: func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
			return "Interpretation of: " + prompt, nil
		},
	}
	l := ledger.NewLedger(database, ledger.NewLengthEstimator(cfg.Ledger), nil)
	sessions := session.NewSessionService(database, nil)

	return &fixture{
		database:    database,
		service:     NewDreamService(l, sessions, interpreter, cfg, nil),
		interpreter: interpreter,
		user:        user,
	}
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	user, err := f.database.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return user.TokenBalance
}

func TestInterpret_NewSession(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	resp, err := f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, Prompt: "I lost my teeth"})
	require.NoError(t, err)

	assert.Equal(t, "Interpretation of: I lost my teeth", resp.Reply)
	assert.Equal(t, 10, resp.TokensCharged)
	assert.Equal(t, 90, resp.Balance)
	assert.Equal(t, "mock-model", resp.Model)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 90, f.balance(t))

	stored, err := f.database.GetDreamSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 2)
}

func TestInterpret_ContinuationPassesHistory(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	first, err := f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, Prompt: "first dream"})
	require.NoError(t, err)

	var seen []llm.Message
	f.interpreter.InterpretFunc = func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
		seen = history
		return "follow-up", nil
	}

	second, err := f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, SessionID: first.SessionID, Prompt: "what about the water?"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	require.Len(t, seen, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first dream"}, seen[0])
	assert.Equal(t, llm.RoleAssistant, seen[1].Role)

	stored, err := f.database.GetDreamSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 4)
	assert.Equal(t, "follow-up", stored.Turns[3].Content)
}

func TestInterpret_InsufficientTokensSkipsInterpreter(t *testing.T) {
	f := newFixture(t, 5)
	called := false
	f.interpreter.InterpretFunc = func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
		called = true
		return "", nil
	}

	_, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "a dream"})
	require.ErrorIs(t, err, db.ErrInsufficientTokens)
	assert.False(t, called)
	assert.Equal(t, 5, f.balance(t))
}

func TestInterpret_InterpreterFailureRefunds(t *testing.T) {
	f := newFixture(t, 100)
	f.interpreter.InterpretFunc = func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
		return "", errors.New("upstream 500")
	}

	_, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: strings.Repeat("x", 300)})
	require.Error(t, err)
	assert.Equal(t, 100, f.balance(t))

	totals, err := f.database.SumTokenTransactions(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, -30, totals[db.KindQuery])
	assert.Equal(t, 30, totals[db.KindRefund])
}

func TestInterpret_EmptyReplyRefunds(t *testing.T) {
	f := newFixture(t, 100)
	f.interpreter.InterpretFunc = func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
		return "   ", nil
	}

	_, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "dream"})
	require.ErrorIs(t, err, llm.ErrEmptyResponse)
	assert.Equal(t, 100, f.balance(t))
}

func TestInterpret_ForeignSessionChargesNothing(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	intruder, err := f.database.CreateUser(ctx, db.NewUser{Email: "intruder@example.com", TokenBalance: 100})
	require.NoError(t, err)
	owned, err := f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, Prompt: "mine"})
	require.NoError(t, err)

	_, err = f.service.Interpret(ctx, InterpretRequest{UserID: intruder.ID, SessionID: owned.SessionID, Prompt: "theirs"})
	require.ErrorIs(t, err, db.ErrSessionForbidden)

	loaded, err := f.database.GetUserByID(ctx, intruder.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.TokenBalance)

	_, err = f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, SessionID: "missing", Prompt: "x"})
	require.ErrorIs(t, err, db.ErrSessionNotFound)
}

func TestInterpret_Validation(t *testing.T) {
	f := newFixture(t, 100)

	_, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "x", Model: "gpt-9"})
	assert.ErrorIs(t, err, ErrInvalidModel)
	assert.Equal(t, 100, f.balance(t))
}

func TestInterpret_TimeoutRefunds(t *testing.T) {
	f := newFixture(t, 100)
	f.service.timeout = 20 * time.Millisecond
	f.interpreter.InterpretFunc = func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "slow dream"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 100, f.balance(t))
}

func TestInterpret_WithImage(t *testing.T) {
	f := newFixture(t, 100)
	var prompts []string
	f.service.WithImages(
		&testutil.MockImageGenerator{GenerateImageFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			prompts = append(prompts, prompt)
			return []byte("png"), nil
		}},
		&testutil.MockImageStore{PutFunc: func(ctx context.Context, userID string, png []byte) (string, error) {
			return "https://cdn/" + userID + ".png", nil
		}},
	)
	ctx := context.Background()

	resp, err := f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, Prompt: "a red door"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/"+f.user.ID+".png", resp.ImageURL)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "a red door")

	stored, err := f.database.GetDreamSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, resp.ImageURL, stored.ImageURL)

	// Continuations are never illustrated
	_, err = f.service.Interpret(ctx, InterpretRequest{UserID: f.user.ID, SessionID: resp.SessionID, Prompt: "more"})
	require.NoError(t, err)
	assert.Len(t, prompts, 1)
}

func TestInterpret_ImageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 100)
	var uploads int32
	f.service.WithImages(
		&testutil.MockImageGenerator{GenerateImageFunc: func(ctx context.Context, prompt string) ([]byte, error) {
			return nil, errors.New("content policy")
		}},
		&testutil.MockImageStore{PutFunc: func(ctx context.Context, userID string, png []byte) (string, error) {
			atomic.AddInt32(&uploads, 1)
			return "", nil
		}},
	)

	resp, err := f.service.Interpret(context.Background(), InterpretRequest{UserID: f.user.ID, Prompt: "a red door"})
	require.NoError(t, err)
	assert.Empty(t, resp.ImageURL)
	assert.Zero(t, atomic.LoadInt32(&uploads))
	assert.Equal(t, 90, f.balance(t))
}

func TestInterpret_SessionWriteFailureRefunds(t *testing.T) {
	refunded := 0
	mockDB := &testutil.MockDatabase{
		DebitTokensFunc: func(ctx context.Context, userID string, amount int) (int, error) {
			return 90, nil
		},
		InsertTokenTransactionFunc: func(ctx context.Context, userID string, amount int, kind string) (*db.TokenTransaction, error) {
			return &db.TokenTransaction{}, nil
		},
		RefundTokensFunc: func(ctx context.Context, userID string, amount int) (int, error) {
			refunded += amount
			return 100, nil
		},
		CreateDreamSessionFunc: func(ctx context.Context, userID, dreamText, imageURL string, turns []db.Turn) (*db.DreamSession, error) {
			return nil, db.Unavailable("creating dream session", errors.New("disk I/O error"))
		},
	}
	cfg := testutil.NewMockConfig()
	interpreter := &testutil.MockInterpreter{
		InterpretFunc: func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
			return "reply", nil
		},
	}
	service := NewDreamService(
		ledger.NewLedger(mockDB, ledger.NewLengthEstimator(cfg.Ledger), nil),
		session.NewSessionService(mockDB, nil),
		interpreter, cfg, nil,
	)

	_, err := service.Interpret(context.Background(), InterpretRequest{UserID: "u", Prompt: "dream"})
	require.ErrorIs(t, err, db.ErrStorageUnavailable)
	assert.Equal(t, 10, refunded)
}

func TestBuildImagePrompt(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"Paint: %s", "Paint: a cat"},
		{"100% surreal: %s", "100% surreal: a cat"},
		{"Paint %s in 50%% sepia", "Paint a cat in 50%% sepia"},
		{"Paint this", "Paint this a cat"},
		{"", "a cat"},
	}

	for _, tt := range tests {
		s := &DreamService{imagePrompt: tt.template}
		if got := s.buildImagePrompt("a cat"); got != tt.want {
			t.Errorf("buildImagePrompt(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}
