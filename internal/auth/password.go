package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost keeps a single verification in the tens-of-milliseconds range on
// commodity hardware. Lowering it weakens offline-cracking resistance.
const bcryptCost = 12

// HashPassword returns a salted bcrypt digest of the password.
func HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// CheckPassword reports whether password matches the stored digest. It never
// returns an error so callers cannot leak a distinction between "user not
// found" and "wrong password" through error shapes.
func CheckPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
