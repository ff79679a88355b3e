package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/auth"
	"github.com/any-hub/release-hub/internal/config"
	"github.com/any-hub/release-hub/internal/logging"
	"github.com/any-hub/release-hub/internal/store"
)

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{ListenPort: 8000}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard()}); err == nil {
		t.Fatalf("missing listen port should fail")
	}
}

func TestRouterSetsRequestID(t *testing.T) {
	app := newTestApp(t)
	app.Get("/ok", func(c fiber.Ctx) error {
		return c.SendString(RequestID(c))
	})

	resp, body := send(t, app, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reqID := resp.Header.Get("X-Request-ID")
	require.NotEmpty(t, reqID)
	assert.Equal(t, reqID, string(body))
}

func TestRouterMapsErrorsToJSON(t *testing.T) {
	app := newTestApp(t)
	app.Get("/missing", func(c fiber.Ctx) error {
		return fmt.Errorf("%w: mirror a/b/c", apperr.ErrNotFound)
	})
	app.Get("/upstream", func(c fiber.Ctx) error {
		return fmt.Errorf("%w: github 503", apperr.ErrUpstreamUnavailable)
	})
	app.Get("/boom", func(c fiber.Ctx) error {
		return fmt.Errorf("disk on fire")
	})
	app.Get("/panic", func(c fiber.Ctx) error {
		panic("unexpected")
	})

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/missing", http.StatusNotFound, "not_found"},
		{"/upstream", http.StatusBadGateway, "upstream_unavailable"},
		{"/boom", http.StatusInternalServerError, "internal_error"},
		{"/panic", http.StatusInternalServerError, "internal_error"},
		{"/no-such-route", http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, body := send(t, app, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, resp.StatusCode)
			var payload ErrorBody
			require.NoError(t, json.Unmarshal(body, &payload), string(body))
			assert.Equal(t, tc.code, payload.Error)
			assert.NotEmpty(t, payload.Message)
			assert.NotContains(t, payload.Message, "disk on fire")
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, "rate_limited", codeForStatus(http.StatusTooManyRequests))
	assert.Equal(t, "method_not_allowed", codeForStatus(http.StatusMethodNotAllowed))
	assert.Equal(t, "error", codeForStatus(599))
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.SendString(token)
	})

	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		resp, body := send(t, app, req)
		if want == "" {
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
			continue
		}
		assert.Equal(t, want, string(body), header)
	}
}

func TestAuthenticatorGuards(t *testing.T) {
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	tokens, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Minute, time.Hour)
	require.NoError(t, err)
	clients := auth.NewRegistry(s,
		auth.NewHasher(auth.HashParams{Memory: 8 * 1024, Iterations: 1, Threads: 1}),
		auth.NewDenylist(s, time.Hour), nil,
		auth.RegistryOptions{AdminCredentialsPath: filepath.Join(t.TempDir(), "admin_info.json")},
	)

	ctx := context.Background()
	admin, err := clients.Generate(true)
	require.NoError(t, err)
	require.NoError(t, clients.Store(ctx, admin))
	user, err := clients.Generate(false)
	require.NoError(t, err)
	require.NoError(t, clients.Store(ctx, user))

	adminPair, err := tokens.Issue(admin.ID, true)
	require.NoError(t, err)
	userPair, err := tokens.Issue(user.ID, false)
	require.NoError(t, err)

	authn := NewAuthenticator(tokens, clients, time.Second)
	app := newTestApp(t)
	ok := func(c fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) }
	app.Get("/access", authn.RequireAccess(), ok)
	app.Get("/refresh", authn.RequireRefresh(), ok)
	app.Get("/admin", authn.RequireAccess(), RequireAdmin(), ok)
	app.Get("/clients/:id", authn.RequireAccess(), RequireSelfOrAdmin("id"), ok)

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/access", "", http.StatusUnauthorized},
		{"garbage token", "/access", "not-a-jwt", http.StatusUnauthorized},
		{"access ok", "/access", userPair.AccessToken, http.StatusNoContent},
		{"refresh used as access", "/access", userPair.RefreshToken, http.StatusUnauthorized},
		{"refresh ok", "/refresh", userPair.RefreshToken, http.StatusNoContent},
		{"admin ok", "/admin", adminPair.AccessToken, http.StatusNoContent},
		{"admin denied", "/admin", userPair.AccessToken, http.StatusUnauthorized},
		{"self ok", "/clients/" + user.ID, userPair.AccessToken, http.StatusNoContent},
		{"other denied", "/clients/" + admin.ID, userPair.AccessToken, http.StatusUnauthorized},
		{"admin manages other", "/clients/" + user.ID, adminPair.AccessToken, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tc.token)
			}
			resp, body := send(t, app, req)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))
		})
	}

	// 吊销后同一 token 失效
	require.NoError(t, clients.BanToken(ctx, mustClaims(t, tokens, userPair.AccessToken).ID))
	req := httptest.NewRequest(http.MethodGet, "/access", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+userPair.AccessToken)
	resp, _ := send(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimiterDisabledWhenMaxIsZero(t *testing.T) {
	app := newTestApp(t)
	app.Get("/", RateLimiter(config.RateLimitConfig{}), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	for range 5 {
		resp, _ := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	app := newTestApp(t)
	app.Get("/", RateLimiter(config.RateLimitConfig{Max: 2, Window: config.Duration(time.Minute)}), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	for range 2 {
		resp, _ := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	resp, body := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), `"rate_limited"`)
}

func TestTimeoutDerivesDeadline(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error {
		ctx, cancel := Timeout(c, time.Second)
		defer cancel()
		if _, ok := ctx.Deadline(); !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		ctx2, cancel2 := Timeout(c, 0)
		defer cancel2()
		if _, ok := ctx2.Deadline(); ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendStatus(http.StatusNoContent)
	})
	resp, _ := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, err := NewApp(AppOptions{Logger: logging.Discard(), ListenPort: 8000})
	require.NoError(t, err)
	return app
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func mustClaims(t *testing.T, tokens *auth.TokenIssuer, raw string) *auth.Claims {
	t.Helper()
	claims, err := tokens.Parse(raw, auth.TokenAccess)
	require.NoError(t, err)
	return claims
}
