package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	_ "github.com/odyssey-erp/backoffice/testing"
)

func newTestRouter(t *testing.T) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{RateLimitPerMinute: 1000},
		Sessions:           shared.NewSessionStore(client, "session"),
		Metrics:            observability.NewMetrics(),
		PermissionsHandler: rbac.NewPermissionsHandler(rbac.NewService()),
	})
	return router, mr
}

func seedSession(t *testing.T, mr *miniredis.Miniredis, token string, actor shared.Actor) {
	t.Helper()
	payload, err := json.Marshal(actor)
	require.NoError(t, err)
	require.NoError(t, mr.Set("session:"+token, string(payload)))
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me/permissions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer unknown")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionResolvesActor(t *testing.T) {
	router, mr := newTestRouter(t)
	seedSession(t, mr, "tok-chef", shared.Actor{UserID: 7, Username: "mira", Role: "chef"})

	req := httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer tok-chef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID      int64    `json:"user_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.UserID)
	require.Equal(t, "chef", body.Role)
	require.NotEmpty(t, body.Permissions)

	req = httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
	req.AddCookie(&http.Cookie{Name: shared.SessionCookieName, Value: "tok-chef"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `backoffice_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestActorMiddlewareBrokenStore(t *testing.T) {
	mw := ActorMiddleware(shared.NewSessionStore(nil, ""), slog.New(slog.NewTextHandler(io.Discard, nil)))
	called := false
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "5", cfg.LowStockThreshold.String())
	require.False(t, cfg.IsProduction())
	require.False(t, cfg.MigrateOnStart)

	t.Setenv("LOW_STOCK_THRESHOLD", "-1")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestTestModeSkipsStartup(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.True(t, InTestMode())
	require.True(t, SkipStartup(discard, "worker"))

	t.Cleanup(RefreshTestMode)
	t.Setenv(TestModeEnv, "false")
	RefreshTestMode()
	require.Equal(t, ModeServe, Mode())
	require.False(t, SkipStartup(discard, "worker"))

	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	require.Equal(t, ModeTest, Mode())
}
