package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/shieldstore/server/internal/model"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint (email, phone) is violated.
	ErrDuplicate = errors.New("duplicate value")
)

// UserRepo defines the credential store operations the auth core needs
type UserRepo interface {
	Create(ctx context.Context, email, phone, passwordHash string, role model.Role) (model.User, error)
	GetByID(ctx context.Context, id int64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	SetRole(ctx context.Context, id int64, role model.Role) error
	SetEmailVerified(ctx context.Context, id int64, verified bool) error
	SetPendingTOTPSecret(ctx context.Context, id int64, secret string) error
	CommitTOTPSecret(ctx context.Context, id int64) error
	DisableTOTP(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `
	id, email, phone, password_hash, role, email_verified,
	two_factor_enabled, two_factor_secret,
	pending_totp_secret, pending_totp_created_at,
	created_at, updated_at
`

// Create inserts a new identity. Email and phone uniqueness violations map to
// ErrDuplicate.
func (r *userRepo) Create(ctx context.Context, email, phone, passwordHash string, role model.Role) (model.User, error) {
	query := `
		INSERT INTO users (email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email, phone, passwordHash, role))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// SetRole updates the role of an identity.
func (r *userRepo) SetRole(ctx context.Context, id int64, role model.Role) error {
	return r.exec(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`,
		"failed to update role", id, role)
}

// SetEmailVerified updates the email-verified flag.
func (r *userRepo) SetEmailVerified(ctx context.Context, id int64, verified bool) error {
	return r.exec(ctx,
		`UPDATE users SET email_verified = $2, updated_at = now() WHERE id = $1`,
		"failed to update email_verified", id, verified)
}

// SetPendingTOTPSecret writes the pending enrollment slot, replacing any
// earlier abandoned enrollment.
func (r *userRepo) SetPendingTOTPSecret(ctx context.Context, id int64, secret string) error {
	return r.exec(ctx,
		`UPDATE users
		 SET pending_totp_secret = $2, pending_totp_created_at = now(), updated_at = now()
		 WHERE id = $1`,
		"failed to set pending totp secret", id, secret)
}

// CommitTOTPSecret copies the pending secret into the committed slot, clears
// the pending slot and flips the enabled flag, in one statement.
func (r *userRepo) CommitTOTPSecret(ctx context.Context, id int64) error {
	return r.exec(ctx,
		`UPDATE users
		 SET two_factor_secret = pending_totp_secret,
		     two_factor_enabled = TRUE,
		     pending_totp_secret = NULL,
		     pending_totp_created_at = NULL,
		     updated_at = now()
		 WHERE id = $1 AND pending_totp_secret IS NOT NULL`,
		"failed to commit totp secret", id)
}

// DisableTOTP clears both secret slots and the enabled flag.
func (r *userRepo) DisableTOTP(ctx context.Context, id int64) error {
	return r.exec(ctx,
		`UPDATE users
		 SET two_factor_secret = NULL,
		     two_factor_enabled = FALSE,
		     pending_totp_secret = NULL,
		     pending_totp_created_at = NULL,
		     updated_at = now()
		 WHERE id = $1`,
		"failed to disable totp", id)
}

// UpdatePassword replaces the stored password hash.
func (r *userRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		"failed to update password", id, passwordHash)
}

func (r *userRepo) exec(ctx context.Context, query, failMsg string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", failMsg, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.EmailVerified,
		&user.TwoFactorEnabled,
		&user.TwoFactorSecret,
		&user.PendingTOTPSecret,
		&user.PendingTOTPCreatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}
