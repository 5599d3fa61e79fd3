// Package service реализует бизнес-логику магазина, склада и кошельков.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// StockRepository описывает хранилище товаров склада.
type StockRepository interface {
	Close() error
	Ping(ctx context.Context) error
	GetProduct(ctx context.Context, sku string) (*model.Product, error)
	SaveProduct(ctx context.Context, p *model.Product) error
	DecreaseStock(ctx context.Context, sku string, qty int) error
	IncreaseStock(ctx context.Context, sku string, qty int) error
}

// LedgerRepository описывает хранилище кошельков. Deposit и Withdraw выполняются под блокировкой кошелька.
type LedgerRepository interface {
	Close() error
	Ping(ctx context.Context) error
	CreateWallet(ctx context.Context, w *model.Wallet) error
	GetWallet(ctx context.Context, id int64) (*model.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error)
	Deposit(ctx context.Context, walletID int64, amount decimal.Decimal) (*model.Transaction, error)
	Withdraw(ctx context.Context, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]model.Transaction, error)
}

// ShopRepository описывает хранилище корзин и заказов магазина.
type ShopRepository interface {
	Close() error
	Ping(ctx context.Context) error
	GetCart(ctx context.Context, id int64) (*model.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (*model.Cart, error)
	AddCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error)
	DeleteCart(ctx context.Context, id int64) error
	CreateOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error
	UpdateOrderCursor(ctx context.Context, o *model.Order, step model.SagaStep, reserved int) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}

// Inventory описывает склад с точки зрения магазина.
type Inventory interface {
	IsInStock(ctx context.Context, sku string, qty int) (bool, error)
	DecreaseStock(ctx context.Context, sku string, qty int) error
	IncreaseStock(ctx context.Context, sku string, qty int) error
	GetProduct(ctx context.Context, sku string) (*model.Product, error)
}

// Wallets описывает сервис кошельков с точки зрения магазина.
type Wallets interface {
	ListWallets(ctx context.Context, p model.Principal) ([]model.Wallet, error)
	Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error)
}
