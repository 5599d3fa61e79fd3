package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/resilience"
)

// GuardedInventory оборачивает каждый вызов склада повторами и размыкателем.
// При недоступности склада возвращаются безопасные значения: товара нет, изменения остатков не выполнены.
type GuardedInventory struct {
	api    Inventory
	guard  *resilience.Guard
	logger *zap.Logger
}

// NewGuardedInventory создаёт защищённый клиент склада.
func NewGuardedInventory(api Inventory, guard *resilience.Guard, logger *zap.Logger) *GuardedInventory {
	return &GuardedInventory{api: api, guard: guard, logger: logger}
}

func (g *GuardedInventory) IsInStock(ctx context.Context, sku string, qty int) (bool, error) {
	return resilience.Call(ctx, g.guard, "is_in_stock",
		func(ctx context.Context) (bool, error) {
			return g.api.IsInStock(ctx, sku, qty)
		},
		func(err error) bool {
			logger.FromContext(ctx, g.logger).Warn("stock check unavailable, treating as out of stock",
				zap.String("sku", sku), zap.Error(err))
			return false
		},
	)
}

func (g *GuardedInventory) DecreaseStock(ctx context.Context, sku string, qty int) error {
	return g.guard.Execute(ctx, "decrease_stock",
		func(ctx context.Context) error {
			return g.api.DecreaseStock(ctx, sku, qty)
		},
		func(err error) {
			logger.FromContext(ctx, g.logger).Warn("stock decrease not confirmed, requires manual reconciliation",
				zap.String("sku", sku), zap.Int("quantity", qty), zap.Error(err))
		},
	)
}

func (g *GuardedInventory) IncreaseStock(ctx context.Context, sku string, qty int) error {
	return g.guard.Execute(ctx, "increase_stock",
		func(ctx context.Context) error {
			return g.api.IncreaseStock(ctx, sku, qty)
		},
		func(err error) {
			logger.FromContext(ctx, g.logger).Error("stock increase failed, compensation lost",
				zap.String("sku", sku), zap.Int("quantity", qty), zap.Error(err))
		},
	)
}

func (g *GuardedInventory) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	return resilience.Call(ctx, g.guard, "get_product",
		func(ctx context.Context) (*model.Product, error) {
			return g.api.GetProduct(ctx, sku)
		},
		func(error) *model.Product { return nil },
	)
}

// GuardedWallets оборачивает каждый вызов сервиса кошельков повторами и размыкателем.
// При недоступности возвращается пустой список кошельков и отсутствие операции списания.
type GuardedWallets struct {
	api    Wallets
	guard  *resilience.Guard
	logger *zap.Logger
}

// NewGuardedWallets создаёт защищённый клиент кошельков.
func NewGuardedWallets(api Wallets, guard *resilience.Guard, logger *zap.Logger) *GuardedWallets {
	return &GuardedWallets{api: api, guard: guard, logger: logger}
}

func (g *GuardedWallets) ListWallets(ctx context.Context, p model.Principal) ([]model.Wallet, error) {
	return resilience.Call(ctx, g.guard, "list_wallets",
		func(ctx context.Context) ([]model.Wallet, error) {
			return g.api.ListWallets(ctx, p)
		},
		func(err error) []model.Wallet {
			logger.FromContext(ctx, g.logger).Warn("wallet list unavailable",
				zap.Int64("user_id", p.UserID), zap.Error(err))
			return []model.Wallet{}
		},
	)
}

func (g *GuardedWallets) Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	return resilience.Call(ctx, g.guard, "withdraw",
		func(ctx context.Context) (*model.Transaction, error) {
			return g.api.Withdraw(ctx, p, walletID, amount, reference)
		},
		func(err error) *model.Transaction {
			logger.FromContext(ctx, g.logger).Warn("withdraw unavailable",
				zap.Int64("wallet_id", walletID), zap.String("reference", reference), zap.Error(err))
			return nil
		},
	)
}
