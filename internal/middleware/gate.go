package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/shieldstore/server/internal/auth"
)

// SessionCookieName is the cookie carrying the bearer token for browser
// clients. The Authorization header takes precedence when both are present.
const SessionCookieName = "session_token"

const (
	loginPath   = "/login"
	accountHome = "/account"
)

type contextKey string

const claimsKey contextKey = "claims"

// publicExact lists storefront paths that pass the gate with no token.
var publicExact = map[string]struct{}{
	"/":                 {},
	"/login":            {},
	"/register":         {},
	"/about":            {},
	"/services":         {},
	"/products":         {},
	"/product":          {},
	"/blog":             {},
	"/contact":          {},
	"/privacy":          {},
	"/terms":            {},
	"/quote":            {},
	"/checkout":         {},
	"/checkout/success": {},
}

// publicPrefixes covers detail pages under public sections plus static assets
// and build artifacts.
var publicPrefixes = []string{
	"/products/",
	"/product/",
	"/blog/",
	"/static/",
	"/assets/",
	"/_next/",
	"/auth/",
	"/health",
}

var assetExtensions = []string{
	".css", ".js", ".map",
	".png", ".jpg", ".jpeg", ".webp", ".svg", ".gif", ".ico",
	".woff", ".woff2", ".ttf",
}

// userPrefixes require any authenticated identity; adminPrefixes additionally
// require an admin-tier role.
var (
	userPrefixes  = []string{"/account", "/api/account"}
	adminPrefixes = []string{"/admin", "/api/admin"}
)

// Gate classifies every inbound request as public, protected or
// role-restricted before any handler runs. It checks only signature, expiry
// and role; session-registry liveness is deliberately left to handlers.
type Gate struct {
	tokens *auth.TokenService
	log    *zap.Logger

	// DefaultDeny rejects paths matching neither the public nor the protected
	// sets. Off by default: the observed system passes unlisted routes
	// through, and existing routes may rely on that.
	DefaultDeny bool
}

// NewGate creates the edge access gate
func NewGate(tokens *auth.TokenService, defaultDeny bool, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{tokens: tokens, DefaultDeny: defaultDeny, log: log}
}

// Handler is the chi middleware entry point.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if isPublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		admin := matchesPrefix(path, adminPrefixes)
		protected := admin || matchesPrefix(path, userPrefixes)
		if !protected {
			if g.DefaultDeny {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token := BearerFromRequest(r)
		if token == "" {
			g.deny(w, r, false)
			return
		}

		claims := g.tokens.Verify(token)
		if claims == nil {
			// Fail closed: stale cookie goes away with the redirect.
			g.log.Debug("rejected invalid or expired token", zap.String("path", path))
			g.deny(w, r, true)
			return
		}

		if admin && !claims.Role.AdminTier() {
			// Redirect rather than 403 so authenticated customers learn
			// nothing about the admin area.
			if wantsJSON(path) {
				respondJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			http.Redirect(w, r, accountHome, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// deny redirects browsers to login (preserving the requested path) and sends
// 401 to API clients. clearCookie removes an invalid or expired session cookie.
func (g *Gate) deny(w http.ResponseWriter, r *http.Request, clearCookie bool) {
	if clearCookie {
		ClearSessionCookie(w)
	}
	if wantsJSON(r.URL.Path) {
		respondJSONError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	target := loginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// BearerFromRequest extracts the token from the Authorization header or,
// failing that, the session cookie.
func BearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookie attaches the bearer token for browser clients.
func SetSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithClaims returns a context carrying the verified identity.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom extracts the identity the gate attached to the request context.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

func isPublic(path string) bool {
	if _, ok := publicExact[path]; ok {
		return true
	}
	if matchesPrefix(path, publicPrefixes) {
		return true
	}
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == strings.TrimSuffix(p, "/") || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func wantsJSON(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
