// Package main запускает HTTP-сервер кошельков.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/config"
	"github.com/mmeshcher/checkout-saga/internal/handler"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/middleware"
	"github.com/mmeshcher/checkout-saga/internal/repository"
	"github.com/mmeshcher/checkout-saga/internal/server"
	"github.com/mmeshcher/checkout-saga/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse(":8082")
	if err != nil {
		zap.NewExample().Sugar().Fatalw("configuration error", "error", err.Error())
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		zap.NewExample().Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer log.Sync()

	sugar := log.Sugar()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is not set, tokens issued elsewhere will be rejected")
	}

	var repo service.LedgerRepository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresLedger(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is not set, wallets are kept in memory")
		repo = repository.NewMemoryLedger()
	}

	ledger := service.NewLedgerService(repo, log)
	defer ledger.Close()

	h := handler.NewWalletHandler(ledger, log)
	r := h.SetupRouter(handler.RouterOptions{
		Logger:  log,
		Auth:    middleware.NewAuthMiddleware(cfg.JWTSecret),
		Limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Health:  map[string]handler.HealthCheck{"db": ledger.Ping},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, log, cfg.RunAddress, r); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
