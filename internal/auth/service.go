package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shieldstore/server/internal/model"
	"github.com/shieldstore/server/internal/repo"
	"github.com/shieldstore/server/internal/session"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike, so
	// responses cannot reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTwoFactorRequired means the password was correct but the account has
	// two-factor enabled and no code was supplied.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrCodeInvalid means a submitted one-time code did not verify.
	ErrCodeInvalid = errors.New("invalid two-factor code")
	// ErrNotEnrolled means the account has no pending or committed secret for
	// the attempted operation.
	ErrNotEnrolled = errors.New("two-factor not enrolled")
	// ErrEnrollmentExpired means the pending secret outlived the configured TTL.
	ErrEnrollmentExpired = errors.New("two-factor enrollment expired")
	// ErrAdminDisabled means no admin shared password is configured.
	ErrAdminDisabled = errors.New("admin login disabled")
)

// Service orchestrates registration, login, logout and two-factor flows.
type Service struct {
	users    repo.UserRepo
	keys     repo.APIKeyRepo
	tokens   *TokenService
	totp     *TOTPManager
	sessions session.Registry
	log      *zap.Logger

	tokenTTL      time.Duration
	pendingTTL    time.Duration // 0 = pending enrollments never expire
	adminPassword string
}

// NewService creates a new auth service
func NewService(
	users repo.UserRepo,
	keys repo.APIKeyRepo,
	tokens *TokenService,
	totp *TOTPManager,
	sessions session.Registry,
	tokenTTL time.Duration,
	pendingTTL time.Duration,
	adminPassword string,
	log *zap.Logger,
) *Service {
	if tokenTTL == 0 {
		tokenTTL = DefaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:         users,
		keys:          keys,
		tokens:        tokens,
		totp:          totp,
		sessions:      sessions,
		tokenTTL:      tokenTTL,
		pendingTTL:    pendingTTL,
		adminPassword: adminPassword,
		log:           log,
	}
}

// RegisterResult carries everything issued at registration. APIKey is the
// plaintext key, returned here and never again.
type RegisterResult struct {
	User   model.User
	Token  string
	APIKey string
}

// Register creates an identity, opens a session and issues a bearer token and
// an API key.
func (s *Service) Register(ctx context.Context, email, phone, password, clientAddr string) (RegisterResult, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, phone, hash, model.RoleCustomer)
	if err != nil {
		return RegisterResult{}, err
	}

	plaintext, keyHash, err := NewAPIKey()
	if err != nil {
		return RegisterResult{}, err
	}
	if _, err := s.keys.Insert(ctx, user.ID, keyHash, nil); err != nil {
		return RegisterResult{}, err
	}

	token, err := s.openSession(ctx, user, clientAddr)
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{User: user, Token: token, APIKey: plaintext}, nil
}

// Login verifies credentials and, when two-factor is enabled, the submitted
// one-time code, then opens a session and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password, totpCode, clientAddr string) (model.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, "", ErrInvalidCredentials
		}
		return model.User{}, "", err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return model.User{}, "", ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		if user.TwoFactorSecret == nil {
			return model.User{}, "", fmt.Errorf("two-factor enabled without committed secret for user %d", user.ID)
		}
		if totpCode == "" {
			return model.User{}, "", ErrTwoFactorRequired
		}
		if !s.totp.VerifyCode(*user.TwoFactorSecret, totpCode, time.Now()) {
			return model.User{}, "", ErrCodeInvalid
		}
	}

	token, err := s.openSession(ctx, user, clientAddr)
	if err != nil {
		return model.User{}, "", err
	}
	return user, token, nil
}

// AdminLogin is the simplified shared-password admin path. It issues an
// admin-tier token without an identity row behind it.
func (s *Service) AdminLogin(ctx context.Context, password, clientAddr string) (string, error) {
	if s.adminPassword == "" {
		return "", ErrAdminDisabled
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) != 1 {
		return "", ErrInvalidCredentials
	}

	sid, err := s.sessions.Create(ctx, 0, clientAddr, s.tokenTTL)
	if err != nil {
		s.log.Warn("session registry unavailable at admin login", zap.Error(err))
		sid = ""
	}
	return s.tokens.Issue(0, "admin", model.RoleAdmin, sid)
}

// Logout revokes the session behind the token. An invalid token is a no-op;
// the caller's cookie is cleared either way.
func (s *Service) Logout(ctx context.Context, tokenString string) {
	claims := s.tokens.Verify(tokenString)
	if claims == nil || claims.SessionID == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil {
		s.log.Warn("failed to revoke session",
			zap.String("session_id", claims.SessionID),
			zap.Error(err),
		)
	}
}

// VerifyToken exposes bearer verification to handlers that extract tokens
// themselves (the gate covers only protected prefixes).
func (s *Service) VerifyToken(tokenString string) *Claims {
	return s.tokens.Verify(tokenString)
}

// SessionActive is the advisory registry check layered over token
// verification. A valid token with no matching record is tolerated with a
// logged warning: the registry may lag issuance or be transiently down, and
// identity correctness comes from the signature.
func (s *Service) SessionActive(ctx context.Context, claims *Claims) bool {
	if claims == nil || claims.SessionID == "" {
		return false
	}
	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		s.log.Warn("session registry unavailable, trusting token",
			zap.String("session_id", claims.SessionID),
			zap.Error(err),
		)
		return true
	}
	if !active {
		if _, err := s.sessions.Get(ctx, claims.SessionID); errors.Is(err, session.ErrNotFound) {
			s.log.Warn("valid token without session record",
				zap.String("session_id", claims.SessionID),
				zap.Int64("user_id", claims.UserID),
			)
			return true
		}
		return false
	}
	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		s.log.Warn("failed to touch session", zap.String("session_id", claims.SessionID), zap.Error(err))
	}
	return true
}

// BeginTwoFactor starts enrollment: a fresh secret lands in the pending slot
// and is rendered for the user. Login behavior is unchanged until the first
// successful confirmation.
func (s *Service) BeginTwoFactor(ctx context.Context, userID int64) (*Enrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.totp.BeginEnrollment(user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPendingTOTPSecret(ctx, userID, enrollment.Secret); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// ConfirmTwoFactor verifies the first code against the pending secret and, on
// success, commits it: pending copies into the committed slot, the pending
// slot clears, the enabled flag flips true.
func (s *Service) ConfirmTwoFactor(ctx context.Context, userID int64, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PendingTOTPSecret == nil {
		return ErrNotEnrolled
	}
	if s.pendingTTL > 0 && user.PendingTOTPCreatedAt != nil &&
		time.Since(*user.PendingTOTPCreatedAt) > s.pendingTTL {
		return ErrEnrollmentExpired
	}
	if !s.totp.VerifyCode(*user.PendingTOTPSecret, code, time.Now()) {
		return ErrCodeInvalid
	}
	return s.users.CommitTOTPSecret(ctx, userID)
}

// DisableTwoFactor turns two-factor off after re-verifying ownership with a
// current code, or with the account password when no code is supplied. Both
// secret slots are cleared.
func (s *Service) DisableTwoFactor(ctx context.Context, userID int64, code, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return ErrNotEnrolled
	}

	switch {
	case code != "":
		if !s.totp.VerifyCode(*user.TwoFactorSecret, code, time.Now()) {
			return ErrCodeInvalid
		}
	case password != "":
		if !CheckPassword(password, user.PasswordHash) {
			return ErrInvalidCredentials
		}
	default:
		return ErrCodeInvalid
	}

	return s.users.DisableTOTP(ctx, userID)
}

// openSession records a session and issues the token carrying its id. Registry
// failure degrades to a token without revocation coverage rather than a
// failed login.
func (s *Service) openSession(ctx context.Context, user model.User, clientAddr string) (string, error) {
	sid, err := s.sessions.Create(ctx, user.ID, clientAddr, s.tokenTTL)
	if err != nil {
		s.log.Warn("session registry unavailable at login",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		sid = ""
	}
	return s.tokens.Issue(user.ID, user.Email, user.Role, sid)
}
