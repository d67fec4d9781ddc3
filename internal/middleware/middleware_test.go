package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var secret = []byte("middleware-secret")

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func authApp(extract TokenExtractor) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/me", Auth(auth.NewHS256Verifier(secret), extract, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": UserID(c), "email": c.Locals(LocalEmail)})
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestAuthHeader(t *testing.T) {
	app := authApp(FromHeader)

	cases := []struct {
		name   string
		header string
		status int
		body   map[string]any
	}{
		{"valid", "Bearer " + token(t, "alice"), http.StatusOK, map[string]any{"id": "alice", "email": "alice@example.com"}},
		{"missing", "", http.StatusUnauthorized, map[string]any{"error": "missing token"}},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, map[string]any{"error": "missing token"}},
		{"bare bearer", "Bearer", http.StatusUnauthorized, map[string]any{"error": "missing token"}},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, map[string]any{"error": "missing token"}},
		{"other scheme", "Token xyz", http.StatusUnauthorized, map[string]any{"error": "missing token"}},
		{"garbage", "Bearer not.a.jwt", http.StatusForbidden, map[string]any{"error": "invalid token"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.body, decode(t, resp))
		})
	}
}

func TestAuthQueryFallsBackToHeader(t *testing.T) {
	app := authApp(FromQueryOrHeader)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me?token="+token(t, "bob"), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "bob", decode(t, resp)["id"])

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "carol"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "carol", decode(t, resp)["id"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errs.ErrMissingToken, http.StatusUnauthorized},
		{errs.ErrInvalidToken, http.StatusForbidden},
		{errs.Validation("to", "is required"), http.StatusBadRequest},
		{&errs.RequestError{}, http.StatusBadRequest},
		{errs.NotFound("user", "x"), http.StatusNotFound},
		{errs.Store("find", errors.New("boom")), http.StatusInternalServerError},
		{fiber.ErrUpgradeRequired, http.StatusUpgradeRequired},
		{errors.New("anything"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := ErrorStatus(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestStoreErrorsDoNotLeak(t *testing.T) {
	_, msg := ErrorStatus(errs.Store("find", errors.New("mongo: connection refused at 10.0.0.3")))
	require.Equal(t, "internal server error", msg)
}

func TestWriteErrorIncludesFieldDetails(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		return WriteError(c, &errs.RequestError{Fields: []errs.FieldError{
			{Field: "kind", Tag: "oneof", Message: "kind must be one of [text sticker]"},
		}})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	require.Len(t, body["details"], 1)
}

func TestZapLoggerRecordsFinalStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(ZapLogger(zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return errs.NotFound("user", "x") })

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NoError(t, err)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	require.Equal(t, int64(http.StatusNotFound), entries[1].ContextMap()["status"])
	require.Equal(t, "/missing", entries[1].ContextMap()["path"])
}

func TestIPRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewIPRateLimiter(ctx, 1, 2, zap.NewNop())
	app := fiber.New()
	app.Use(l.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestIPRateLimiterEvictsIdleVisitors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewIPRateLimiter(ctx, 60, 1, zap.NewNop())
	now := time.Now()
	l.now = func() time.Time { return now }
	l.limiter("10.0.0.1")
	now = now.Add(10 * time.Minute)
	l.limiter("10.0.0.2")

	l.evict(now.Add(-visitorIdle))

	_, stale := l.visitors.Load("10.0.0.1")
	_, fresh := l.visitors.Load("10.0.0.2")
	require.False(t, stale)
	require.True(t, fresh)
}
