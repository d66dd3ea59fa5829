package api

import (
	"context"
	"dream-san/internal/app"
	"dream-san/internal/config"
	"dream-san/internal/metrics"
	"dream-san/internal/middleware"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/sqlite"
	"dream-san/internal/service/llm"
	"dream-san/internal/testutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, limiter *middleware.RateLimiter) (http.Handler, *app.Config, *sqlite.SQLiteDB) {
	t.Helper()
	database, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := testutil.NewMockConfig()
	cfg.Server.AllowedOrigin = "https://dreamsan.app"
	cfg.Models = config.NewModelsConfigFromList([]config.Model{{ID: "mock-model", Provider: "mock"}})

	interpreter := &testutil.MockInterpreter{
		InterpretFunc: func(ctx context.Context, history []llm.Message, prompt, model string) (string, error) {
			return "a reading", nil
		},
	}
	appConfig := app.NewConfig(database, cfg, interpreter, metrics.New())
	return NewRouter(appConfig, limiter), appConfig, database
}

func bearer(t *testing.T, cfg *app.Config, user *db.User) string {
	t.Helper()
	token, err := cfg.Tokens.GenerateToken(user.ID, user.Email)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router, _, _ := newRouter(t, nil)

	for _, target := range []string{"/api/me", "/api/me/transactions", "/api/dreams", "/api/admin/stats"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestRouter_PreflightAndHealth(t *testing.T) {
	router, _, _ := newRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/dreams", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dreamsan.app", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
}

func TestRouter_DreamRoundTrip(t *testing.T) {
	router, cfg, database := newRouter(t, nil)
	user, err := database.CreateUser(context.Background(), db.NewUser{Email: "dreamer@example.com", TokenBalance: 50})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/dreams", strings.NewReader(`{"dream": "a staircase without end"}`))
	req.Header.Set("Authorization", bearer(t, cfg, user))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"balance":40`)

	req = httptest.NewRequest(http.MethodGet, "/api/dreams", nil)
	req.Header.Set("Authorization", bearer(t, cfg, user))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a staircase without end")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/dreams")
}

func TestRouter_RateLimitsInterpretation(t *testing.T) {
	router, cfg, database := newRouter(t, middleware.NewRateLimiter(0.001, 1))
	user, err := database.CreateUser(context.Background(), db.NewUser{Email: "fast@example.com", TokenBalance: 100})
	require.NoError(t, err)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/dreams", strings.NewReader(`{"dream": "again"}`))
		req.Header.Set("Authorization", bearer(t, cfg, user))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
