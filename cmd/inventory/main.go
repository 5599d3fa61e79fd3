// Package main запускает HTTP-сервер склада.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/config"
	"github.com/mmeshcher/checkout-saga/internal/handler"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/repository"
	"github.com/mmeshcher/checkout-saga/internal/server"
	"github.com/mmeshcher/checkout-saga/internal/service"
)

// demoCatalog заполняет пустой склад при запуске в памяти или в режиме разработки.
var demoCatalog = []model.Product{
	{SKU: "LAPTOP001", Name: "Gaming Laptop Pro", Price: decimal.RequireFromString("999.99"), StockQuantity: 10},
	{SKU: "PHONE001", Name: "Smartphone X", Price: decimal.RequireFromString("699.99"), StockQuantity: 25},
	{SKU: "BOOK001", Name: "Java Programming Guide", Price: decimal.RequireFromString("29.99"), StockQuantity: 100},
	{SKU: "SHOE001", Name: "Running Shoes Elite", Price: decimal.RequireFromString("89.99"), StockQuantity: 50},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse(":8081")
	if err != nil {
		zap.NewExample().Sugar().Fatalw("configuration error", "error", err.Error())
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		zap.NewExample().Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer log.Sync()

	sugar := log.Sugar()

	var repo service.StockRepository
	seed := cfg.Development()
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresInventory(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is not set, stock is kept in memory")
		repo = repository.NewMemoryInventory()
		seed = true
	}

	stock := service.NewStockService(repo, log)
	defer stock.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if seed {
		if err := stock.SeedProducts(ctx, demoCatalog); err != nil {
			sugar.Fatalw("seed products error", "error", err.Error())
		}
		sugar.Infow("demo catalog loaded", "products", len(demoCatalog))
	}

	h := handler.NewInventoryHandler(stock, log)
	r := h.SetupRouter(handler.RouterOptions{
		Logger: log,
		Health: map[string]handler.HealthCheck{"db": stock.Ping},
	})

	if err := server.Run(ctx, log, cfg.RunAddress, r); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
