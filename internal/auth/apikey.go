package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks issued keys so leaked secrets can be recognized in logs
// and scanners.
const APIKeyPrefix = "sk_"

// NewAPIKey returns a fresh opaque API key (prefix + 64 hex characters) and
// the SHA-256 hex digest under which it is persisted. The plaintext is never
// stored; callers return it to the owner exactly once.
func NewAPIKey() (plaintext, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate api key: %w", err)
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(b)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey returns the deterministic lookup digest of a plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidAPIKeyShape reports whether s looks like an issued key. It is a cheap
// pre-filter before a store lookup, not an authenticity check.
func ValidAPIKeyShape(s string) bool {
	if !strings.HasPrefix(s, APIKeyPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, APIKeyPrefix)
	if len(rest) != 64 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
