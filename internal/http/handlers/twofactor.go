package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shieldstore/server/internal/auth"
	"github.com/shieldstore/server/internal/middleware"
	"github.com/shieldstore/server/internal/repo"
)

// TwoFactorHandler drives TOTP enrollment under /account/2fa. The edge gate
// guarantees an authenticated identity in the request context.
type TwoFactorHandler struct {
	svc *auth.Service
	log *zap.Logger
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(svc *auth.Service, log *zap.Logger) *TwoFactorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TwoFactorHandler{svc: svc, log: log}
}

// enrollResponse is the JSON response for enrollment start
type enrollResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRPNGB64   string `json:"qr_png_base64"`
}

// confirmRequest is the request body for enrollment confirmation
type confirmRequest struct {
	Code string `json:"code"`
}

// disableRequest is the request body for turning two-factor off. Either a
// current code or the account password proves ownership.
type disableRequest struct {
	Code     string `json:"code,omitempty"`
	Password string `json:"password,omitempty"`
}

// HandleBegin handles GET /account/2fa: writes a pending secret and returns
// the provisioning material.
func (h *TwoFactorHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	enrollment, err := h.svc.BeginTwoFactor(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusUnauthorized, "unknown identity")
			return
		}
		h.log.Error("failed to begin two-factor enrollment", zap.Int64("user_id", claims.UserID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}

	respondWithJSON(w, http.StatusOK, enrollResponse{
		Secret:     enrollment.Secret,
		OTPAuthURL: enrollment.URL,
		QRPNGB64:   enrollment.QRPNGB64,
	})
}

// HandleConfirm handles POST /account/2fa: verifies the first code against
// the pending secret and commits enrollment.
func (h *TwoFactorHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "code is required")
		return
	}

	err := h.svc.ConfirmTwoFactor(r.Context(), claims.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotEnrolled):
			respondWithError(w, http.StatusConflict, "no enrollment in progress")
		case errors.Is(err, auth.ErrEnrollmentExpired):
			respondWithError(w, http.StatusGone, "enrollment expired, restart setup")
		case errors.Is(err, auth.ErrCodeInvalid):
			respondWithError(w, http.StatusBadRequest, "invalid two-factor code")
		default:
			h.log.Error("failed to confirm two-factor enrollment", zap.Int64("user_id", claims.UserID), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "enrollment failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"two_factor_enabled": true})
}

// HandleDisable handles DELETE /account/2fa.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req disableRequest
	if r.Body != nil {
		// Body is optional; an empty body means no proof was supplied and the
		// service rejects it.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := h.svc.DisableTwoFactor(r.Context(), claims.UserID, strings.TrimSpace(req.Code), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotEnrolled):
			respondWithError(w, http.StatusConflict, "two-factor is not enabled")
		case errors.Is(err, auth.ErrCodeInvalid):
			respondWithError(w, http.StatusBadRequest, "invalid two-factor code")
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.log.Error("failed to disable two-factor", zap.Int64("user_id", claims.UserID), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "disable failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"two_factor_enabled": false})
}
