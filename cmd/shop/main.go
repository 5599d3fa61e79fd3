// Package main запускает HTTP-сервер магазина: корзины, заказы и сагу оформления.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/config"
	"github.com/mmeshcher/checkout-saga/internal/events"
	"github.com/mmeshcher/checkout-saga/internal/handler"
	"github.com/mmeshcher/checkout-saga/internal/idempotency"
	"github.com/mmeshcher/checkout-saga/internal/inventory"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/middleware"
	"github.com/mmeshcher/checkout-saga/internal/repository"
	"github.com/mmeshcher/checkout-saga/internal/resilience"
	"github.com/mmeshcher/checkout-saga/internal/server"
	"github.com/mmeshcher/checkout-saga/internal/service"
	"github.com/mmeshcher/checkout-saga/internal/wallet"
)

// idempotencyStore объединяет хранилища ключей идемпотентности Redis и памяти.
type idempotencyStore interface {
	handler.IdempotencyStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse(":8080")
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

	if cfg.InventoryAddress == "" || cfg.WalletAddress == "" {
		sugar.Fatalw("configuration error", "error", "inventory and wallet addresses are required")
	}

	var repo service.ShopRepository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresShop(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is not set, orders are kept in memory")
		repo = repository.NewMemoryShop()
	}

	inventoryAPI := service.NewGuardedInventory(
		inventory.NewClient(cfg.InventoryAddress, cfg.HTTPClientTimeout),
		resilience.NewGuard(cfg.ResiliencePolicy("inventory"), log),
		log,
	)
	walletAPI := service.NewGuardedWallets(
		wallet.NewClient(cfg.WalletAddress, cfg.HTTPClientTimeout),
		resilience.NewGuard(cfg.ResiliencePolicy("wallet"), log),
		log,
	)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	var idem idempotencyStore
	if cfg.RedisAddr != "" {
		idem = idempotency.NewRedisStore(cfg.RedisAddr)
	} else {
		idem = idempotency.NewMemoryStore()
	}
	defer idem.Close()

	orders := service.NewOrderService(repo, inventoryAPI, walletAPI, publisher, log)
	defer orders.Close()
	carts := service.NewCartService(repo, inventoryAPI, log)

	h := handler.NewShopHandler(orders, carts, idem, log)
	r := h.SetupRouter(handler.RouterOptions{
		Logger:  log,
		Auth:    middleware.NewAuthMiddleware(cfg.JWTSecret),
		Limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Health: map[string]handler.HealthCheck{
			"db":          orders.Ping,
			"idempotency": idem.Ping,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Фоновая компенсация заказов, брошенных посреди оформления
	recovery := func(ctx context.Context) {
		orders.StartRecovery(ctx, cfg.RecoveryInterval, cfg.PendingTimeout)
	}

	if err := server.Run(ctx, log, cfg.RunAddress, r, recovery); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
