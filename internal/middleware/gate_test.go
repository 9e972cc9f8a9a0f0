package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldstore/server/internal/auth"
	"github.com/shieldstore/server/internal/model"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

// gateHarness wraps a gate around a handler that records the injected claims.
type gateHarness struct {
	gate    *Gate
	tokens  *auth.TokenService
	handler http.Handler
	seen    *auth.Claims
	called  bool
}

func newGateHarness(t *testing.T, defaultDeny bool) *gateHarness {
	t.Helper()
	h := &gateHarness{tokens: auth.NewTokenService(testSecret, 0)}
	h.gate = NewGate(h.tokens, defaultDeny, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.called = true
		h.seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h.handler = h.gate.Handler(next)
	return h
}

func (h *gateHarness) do(req *http.Request) *httptest.ResponseRecorder {
	h.called = false
	h.seen = nil
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *gateHarness) token(t *testing.T, role model.Role) string {
	t.Helper()
	token, err := h.tokens.Issue(42, "buyer@example.com", role, "sid-1")
	require.NoError(t, err)
	return token
}

func TestGate_publicPathsPassThrough(t *testing.T) {
	h := newGateHarness(t, false)

	for _, path := range []string{
		"/", "/products", "/products/steel-door-lock", "/blog/choosing-a-safe",
		"/checkout/success", "/static/app.css", "/assets/logo.png", "/favicon.ico",
	} {
		rec := h.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
		assert.True(t, h.called, "path %s should reach the handler", path)
		assert.Nil(t, h.seen, "public paths carry no identity")
	}
}

func TestGate_missingTokenRedirectsToLogin(t *testing.T) {
	h := newGateHarness(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/account/orders", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Faccount%2Forders", rec.Header().Get("Location"))
	assert.False(t, h.called)
}

func TestGate_expiredTokenClearsCookieAndRedirects(t *testing.T) {
	h := newGateHarness(t, false)

	expired := auth.NewTokenService(testSecret, -time.Hour)
	token, err := expired.Issue(42, "buyer@example.com", model.RoleCustomer, "sid-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

	rec := h.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?redirect=")
	assert.False(t, h.called)

	// The stale cookie is cleared on the way out.
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie should be cleared")
}

func TestGate_validTokenInjectsClaims(t *testing.T) {
	h := newGateHarness(t, false)

	req := httptest.NewRequest(http.MethodGet, "/account/orders", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleCustomer))

	rec := h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.seen)
	assert.Equal(t, int64(42), h.seen.UserID)
	assert.Equal(t, model.RoleCustomer, h.seen.Role)
}

func TestGate_cookieFallbackAndHeaderPrecedence(t *testing.T) {
	h := newGateHarness(t, false)

	// Cookie alone is enough.
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: h.token(t, model.RoleCustomer)})
	assert.Equal(t, http.StatusOK, h.do(req).Code)

	// A valid header wins over a garbage cookie.
	req = httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleCustomer))
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	assert.Equal(t, http.StatusOK, h.do(req).Code)
}

func TestGate_adminPathRoleCheck(t *testing.T) {
	h := newGateHarness(t, false)

	// A customer token on an admin path redirects to the account area, it
	// does not 403.
	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleCustomer))
	rec := h.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
	assert.False(t, h.called)

	// manager is elevated but not admin-tier.
	req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleManager))
	assert.Equal(t, http.StatusFound, h.do(req).Code)

	for _, role := range []model.Role{model.RoleAdmin, model.RoleSuperAdmin} {
		req = httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, role))
		rec = h.do(req)
		assert.Equal(t, http.StatusOK, rec.Code, "role %s", role)
		require.NotNil(t, h.seen)
	}
}

func TestGate_apiPathsGetJSONErrors(t *testing.T) {
	h := newGateHarness(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/account/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthenticated")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleCustomer))
	rec = h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGate_unclassifiedPathDefault(t *testing.T) {
	// Implicit allow: unlisted paths pass through untouched.
	h := newGateHarness(t, false)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/warranty-claims", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.called)

	// Default deny flips the same path to a 404 without touching gate logic.
	h = newGateHarness(t, true)
	rec = h.do(httptest.NewRequest(http.MethodGet, "/warranty-claims", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, h.called)
}
