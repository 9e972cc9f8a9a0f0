package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	RedisURL    string // empty selects the in-memory session/rate-limit backends
	Port        string
	Env         string

	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string

	TOTPIssuer          string
	TwoFactorPendingTTL time.Duration // 0 = pending enrollments never expire

	// GateDefaultDeny flips the edge gate from implicit-allow to default-deny
	// for paths that match neither the public nor the protected sets.
	GateDefaultDeny bool

	RegisterMaxAttempts int64
	RegisterWindow      time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                "8080",
		Env:                 "development",
		TokenTTL:            7 * 24 * time.Hour,
		TOTPIssuer:          "ShieldStore",
		RegisterMaxAttempts: 3,
		RegisterWindow:      15 * time.Minute,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}
	if issuer := os.Getenv("TOTP_ISSUER"); issuer != "" {
		cfg.TOTPIssuer = issuer
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.TwoFactorPendingTTL, err = durationEnv("TWO_FACTOR_PENDING_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.RegisterWindow, err = durationEnv("REGISTER_WINDOW", cfg.RegisterWindow); err != nil {
		return nil, err
	}

	if raw := os.Getenv("REGISTER_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid REGISTER_MAX_ATTEMPTS %q", raw)
		}
		cfg.RegisterMaxAttempts = n
	}

	cfg.GateDefaultDeny = os.Getenv("GATE_DEFAULT_DENY") == "true"

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}
