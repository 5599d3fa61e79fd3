package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/metrics"
	custommiddleware "github.com/mmeshcher/checkout-saga/internal/middleware"
)

// RouterOptions задаёт общие для всех сервисов middleware и проверки здоровья.
type RouterOptions struct {
	Logger  *zap.Logger
	Auth    *custommiddleware.AuthMiddleware
	Limiter *custommiddleware.RateLimiter
	Health  map[string]HealthCheck
}

// newRouter создаёт маршрутизатор с общими middleware, /healthz и /metrics.
// Маршруты public и private сжимаются и ограничиваются по частоте, private дополнительно требуют токен.
func newRouter(opts RouterOptions, public, private func(r chi.Router)) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(opts.Logger))
	r.Use(custommiddleware.Metrics)

	r.Get("/healthz", health(opts.Health))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		if public != nil {
			r.Group(func(r chi.Router) {
				if opts.Limiter != nil {
					r.Use(opts.Limiter.Middleware)
				}
				public(r)
			})
		}

		if private != nil {
			r.Group(func(r chi.Router) {
				if opts.Auth != nil {
					r.Use(opts.Auth.Middleware)
				}
				if opts.Limiter != nil {
					r.Use(opts.Limiter.Middleware)
				}
				private(r)
			})
		}
	})

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	return r
}

// SetupRouter настраивает HTTP-маршруты магазина. Все маршруты требуют токен.
func (h *ShopHandler) SetupRouter(opts RouterOptions) *chi.Mux {
	return newRouter(opts, nil, func(r chi.Router) {
		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})
		r.Put("/api/admin/orders/{id}/status", h.UpdateOrderStatus)

		r.Post("/api/cart/items", h.AddCartItem)
		r.Get("/api/cart", h.GetCart)
	})
}

// SetupRouter настраивает HTTP-маршруты склада. Склад вызывается другими сервисами без токена пользователя,
// все запросы одной саги приходят с адреса магазина, поэтому ограничение частоты к ним не применяется.
func (h *InventoryHandler) SetupRouter(opts RouterOptions) *chi.Mux {
	opts.Limiter = nil
	return newRouter(opts, func(r chi.Router) {
		r.Route("/api/inventory/{sku}", func(r chi.Router) {
			r.Get("/availability", h.Availability)
			r.Post("/decrease", h.Decrease)
			r.Post("/increase", h.Increase)
		})
		r.Get("/api/products/{sku}", h.GetProduct)
	}, nil)
}

// SetupRouter настраивает HTTP-маршруты кошельков. Все маршруты требуют токен.
func (h *WalletHandler) SetupRouter(opts RouterOptions) *chi.Mux {
	return newRouter(opts, nil, func(r chi.Router) {
		r.Route("/api/wallets", func(r chi.Router) {
			r.Get("/", h.ListWallets)
			r.Post("/", h.CreateWallet)
			r.Get("/{id}", h.GetWallet)
			r.Post("/{id}/withdraw", h.Withdraw)
			r.Post("/{id}/deposit", h.Deposit)
			r.Get("/{id}/transactions", h.ListTransactions)
		})
	})
}
