package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access tier of an identity.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleSupport    Role = "support"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSupport, RoleManager, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AdminTier reports whether r may enter the admin area.
// support and manager are elevated customer-side roles, not admin tiers.
func (r Role) AdminTier() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User represents an account in the system. Email and phone are each unique.
type User struct {
	ID               int64
	Email            string
	Phone            string
	PasswordHash     string
	Role             Role
	EmailVerified    bool
	TwoFactorEnabled bool

	// TwoFactorSecret is the committed TOTP secret, set only after the first
	// successful code verification. PendingTOTPSecret holds the secret between
	// enrollment start and confirmation.
	TwoFactorSecret      *string
	PendingTOTPSecret    *string
	PendingTOTPCreatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a server-side record of an issued bearer token. It exists to
// allow mid-lifetime revocation; token verification never depends on it.
type Session struct {
	ID         uuid.UUID
	UserID     int64
	ClientAddr string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Active     bool
	LastUsedAt time.Time
}

// APIKey stores the one-way hash of an issued API key. The plaintext is
// returned to the caller exactly once, at creation, and never persisted.
type APIKey struct {
	ID        int64
	UserID    int64
	KeyHash   string
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}
