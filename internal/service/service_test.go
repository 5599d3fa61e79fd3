package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/checkout-saga/internal/events"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/repository"
)

var (
	alice = model.Principal{UserID: 1, Role: model.RoleUser, Token: "alice"}
	bob   = model.Principal{UserID: 2, Role: model.RoleUser, Token: "bob"}
	admin = model.Principal{UserID: 99, Role: model.RoleAdmin, Token: "admin"}
)

// ledgerWallets подключает LedgerService как сервис кошельков магазина без HTTP.
type ledgerWallets struct {
	svc *LedgerService
}

func (w ledgerWallets) ListWallets(ctx context.Context, p model.Principal) ([]model.Wallet, error) {
	return w.svc.ListWallets(ctx, p, p.UserID)
}

func (w ledgerWallets) Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	return w.svc.Withdraw(ctx, p, walletID, amount, reference)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	envs   []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type fixture struct {
	shopRepo   *repository.MemoryShop
	stockRepo  *repository.MemoryInventory
	ledgerRepo *repository.MemoryLedger

	stock     *StockService
	ledger    *LedgerService
	carts     *CartService
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	f := &fixture{
		shopRepo:   repository.NewMemoryShop(),
		stockRepo:  repository.NewMemoryInventory(),
		ledgerRepo: repository.NewMemoryLedger(),
		publisher:  &recordingPublisher{},
	}
	f.stock = NewStockService(f.stockRepo, log)
	f.ledger = NewLedgerService(f.ledgerRepo, log)
	f.carts = NewCartService(f.shopRepo, f.stock, log)
	return f
}

// orders собирает сервис заказов. nil-зависимости заменяются настоящими сервисами склада и кошельков.
func (f *fixture) orders(t *testing.T, inventory Inventory, wallets Wallets) *OrderService {
	t.Helper()
	if inventory == nil {
		inventory = f.stock
	}
	if wallets == nil {
		wallets = ledgerWallets{svc: f.ledger}
	}
	return NewOrderService(f.shopRepo, inventory, wallets, f.publisher, zaptest.NewLogger(t))
}

func (f *fixture) product(t *testing.T, sku, price string, stock int) {
	t.Helper()
	require.NoError(t, f.stockRepo.SaveProduct(context.Background(), &model.Product{
		SKU:           sku,
		Name:          "Product " + sku,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
}

func (f *fixture) wallet(t *testing.T, p model.Principal, balance string) *model.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := f.ledger.CreateWallet(ctx, p, "main", "")
	require.NoError(t, err)
	if amount := decimal.RequireFromString(balance); amount.IsPositive() {
		_, err = f.ledger.Deposit(ctx, p, w.ID, amount)
		require.NoError(t, err)
	}
	return w
}

func (f *fixture) stockOf(t *testing.T, sku string) int {
	t.Helper()
	p, err := f.stockRepo.GetProduct(context.Background(), sku)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) balanceOf(t *testing.T, walletID int64) decimal.Decimal {
	t.Helper()
	w, err := f.ledgerRepo.GetWallet(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance
}
