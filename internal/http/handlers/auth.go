package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shieldstore/server/internal/auth"
	"github.com/shieldstore/server/internal/middleware"
	"github.com/shieldstore/server/internal/model"
	"github.com/shieldstore/server/internal/ratelimit"
	"github.com/shieldstore/server/internal/repo"
)

// msgTooManyAttempts is shown to storefront users when the registration
// window is exhausted.
const msgTooManyAttempts = "יותר מדי ניסיונות, נסה שוב בעוד 15 דקות"

// AuthHandler handles registration, login, logout and session checks
type AuthHandler struct {
	svc             *auth.Service
	registerLimiter *ratelimit.Limiter
	cookieMaxAge    int
	log             *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.Service, registerLimiter *ratelimit.Limiter, cookieMaxAge int, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		svc:             svc,
		registerLimiter: registerLimiter,
		cookieMaxAge:    cookieMaxAge,
		log:             log,
	}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// registerResponse is the JSON response for register. APIKey appears here and
// nowhere else, ever.
type registerResponse struct {
	Token  string       `json:"token"`
	APIKey string       `json:"api_key"`
	User   userResponse `json:"user"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// loginResponse is the JSON response for login
type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID               int64  `json:"id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondWithError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}
	if len(req.Password) < 8 {
		respondWithError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	ip := clientIP(r)
	if !h.registerLimiter.Allow(r.Context(), "register:"+ip) {
		respondRateLimited(w)
		return
	}

	result, err := h.svc.Register(r.Context(), req.Email, req.Phone, req.Password, ip)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			respondWithError(w, http.StatusConflict, "email or phone already registered")
			return
		}
		h.log.Error("registration failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	middleware.SetSessionCookie(w, result.Token, h.cookieMaxAge)
	respondWithJSON(w, http.StatusCreated, registerResponse{
		Token:  result.Token,
		APIKey: result.APIKey,
		User:   toUserResponse(result.User),
	})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password, strings.TrimSpace(req.TOTPCode), clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTwoFactorRequired):
			respondWithError(w, http.StatusUnauthorized, "two_factor_required")
		case errors.Is(err, auth.ErrCodeInvalid):
			respondWithError(w, http.StatusUnauthorized, "invalid two-factor code")
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.log.Error("login failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	middleware.SetSessionCookie(w, token, h.cookieMaxAge)
	respondWithJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(user)})
}

// HandleAdminLogin handles POST /admin/login, the simplified shared-password
// admin path.
func (h *AuthHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.svc.AdminLogin(r.Context(), req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAdminDisabled):
			respondWithError(w, http.StatusNotFound, "not found")
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.log.Error("admin login failed", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	middleware.SetSessionCookie(w, token, h.cookieMaxAge)
	respondWithJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerFromRequest(r); token != "" {
		h.svc.Logout(r.Context(), token)
	}
	middleware.ClearSessionCookie(w)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged_out"})
}

// sessionResponse is the JSON response for the session check
type sessionResponse struct {
	User          userClaims `json:"user"`
	SessionActive bool       `json:"session_active"`
}

type userClaims struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// HandleSession handles GET /auth/session: token identity plus the advisory
// registry check.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerFromRequest(r)
	if token == "" {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	claims := h.svc.VerifyToken(token)
	if claims == nil {
		middleware.ClearSessionCookie(w)
		respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	respondWithJSON(w, http.StatusOK, sessionResponse{
		User: userClaims{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  string(claims.Role),
		},
		SessionActive: h.svc.SessionActive(r.Context(), claims),
	})
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Role:             string(u.Role),
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

func respondRateLimited(w http.ResponseWriter) {
	respondWithJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":               msgTooManyAttempts,
		"retry_after_minutes": 15,
	})
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// clientIP returns the address used for rate limiting and session records.
// chi's RealIP middleware already folds X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
