package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shieldstore/server/internal/model"
)

// DefaultTokenTTL is the bearer token lifetime used when no TOKEN_TTL is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims is the signed, self-contained claim set carried by a bearer token.
// SessionID ties the token to its Session Registry record; verification never
// consults the registry.
type Claims struct {
	UserID    int64      `json:"uid"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	SessionID string     `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed bearer tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service signing with the process-wide secret
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue produces a signed token embedding the identity claims, expiring
// ttl from now.
func (s *TokenService) Issue(userID int64, email string, role model.Role, sessionID string) (string, error) {
	return s.issueAt(userID, email, role, sessionID, time.Now())
}

func (s *TokenService) issueAt(userID int64, email string, role model.Role, sessionID string, now time.Time) (string, error) {
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims, or nil
// on any failure. Malformed, expired and forged tokens are indistinguishable
// to callers, which is deliberate.
func (s *TokenService) Verify(tokenString string) *Claims {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil
	}
	return claims
}
