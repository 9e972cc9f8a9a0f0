package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shieldstore/server/internal/auth"
	"github.com/shieldstore/server/internal/config"
	"github.com/shieldstore/server/internal/db"
	httphandler "github.com/shieldstore/server/internal/http"
	"github.com/shieldstore/server/internal/http/handlers"
	"github.com/shieldstore/server/internal/logging"
	"github.com/shieldstore/server/internal/middleware"
	"github.com/shieldstore/server/internal/ratelimit"
	"github.com/shieldstore/server/internal/repo"
	"github.com/shieldstore/server/internal/session"
)

func main() {
	// .env is a development convenience; real env vars override it.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logging.Init("development").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logging.Init(cfg.Env)
	defer logging.Sync()

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Shared-cache backends when redis is configured, in-process otherwise.
	var (
		sessions  session.Registry
		rateStore ratelimit.Store
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to ping redis", zap.Error(err))
		}
		defer client.Close()

		sessions = session.NewRedisRegistry(client)
		rateStore = ratelimit.NewRedisStore(client)
		log.Info("using redis session and rate-limit backends")
	} else {
		memStore := ratelimit.NewMemoryStore()
		defer memStore.Close()

		sessions = session.NewMemoryRegistry()
		rateStore = memStore
		log.Warn("REDIS_URL not set, using in-process session and rate-limit backends")
	}

	userRepo := repo.NewUserRepo(database)
	apiKeyRepo := repo.NewAPIKeyRepo(database)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	totp := auth.NewTOTPManager(cfg.TOTPIssuer)
	authService := auth.NewService(
		userRepo, apiKeyRepo, tokens, totp, sessions,
		cfg.TokenTTL, cfg.TwoFactorPendingTTL, cfg.AdminPassword, log,
	)

	registerLimiter := ratelimit.New(rateStore, cfg.RegisterMaxAttempts, cfg.RegisterWindow, log)
	cookieMaxAge := int(cfg.TokenTTL / time.Second)

	authHandler := handlers.NewAuthHandler(authService, registerLimiter, cookieMaxAge, log)
	twoFactorHandler := handlers.NewTwoFactorHandler(authService, log)
	gate := middleware.NewGate(tokens, cfg.GateDefaultDeny, log)

	router := httphandler.NewRouter(authHandler, twoFactorHandler, gate)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.Bool("gate_default_deny", cfg.GateDefaultDeny),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
