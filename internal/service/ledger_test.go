package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

func TestLedger_WithdrawValidationAndAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.wallet(t, alice, "10")

	tests := []struct {
		name    string
		p       model.Principal
		amount  string
		wantErr error
	}{
		{name: "zero amount", p: alice, amount: "0", wantErr: model.ErrValidation},
		{name: "negative amount", p: alice, amount: "-1", wantErr: model.ErrValidation},
		{name: "sub-cent amount", p: alice, amount: "5.005", wantErr: model.ErrValidation},
		{name: "amount rounding to zero", p: alice, amount: "0.001", wantErr: model.ErrValidation},
		{name: "foreign wallet", p: bob, amount: "1", wantErr: model.ErrForbidden},
		{name: "more than balance", p: alice, amount: "10.01", wantErr: model.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Withdraw(ctx, tt.p, w.ID, decimal.RequireFromString(tt.amount), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, decimal.NewFromInt(10).Equal(f.balanceOf(t, w.ID)))
		})
	}

	_, err := f.ledger.Deposit(ctx, alice, w.ID, decimal.RequireFromString("0.005"))
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)

	txn, err := f.ledger.Withdraw(ctx, admin, w.ID, decimal.NewFromInt(4), "")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionWithdraw, txn.Type)
	assert.True(t, decimal.NewFromInt(6).Equal(f.balanceOf(t, w.ID)))

	_, err = f.ledger.Withdraw(ctx, alice, 404, decimal.NewFromInt(1), "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestLedger_ConcurrentWithdrawsKeepBalanceNonNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.wallet(t, alice, "100")

	const workers = 30
	amount := decimal.NewFromInt(9)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Withdraw(ctx, alice, w.ID, amount, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 11, succeeded)
	want := decimal.NewFromInt(100).Sub(amount.Mul(decimal.NewFromInt(int64(succeeded))))
	got := f.balanceOf(t, w.ID)
	assert.True(t, want.Equal(got), "balance %s, want %s", got, want)
	assert.False(t, got.IsNegative())
}

func TestLedger_DepositAndTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.wallet(t, alice, "0")

	_, err := f.ledger.Deposit(ctx, alice, w.ID, decimal.Zero)
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = f.ledger.Deposit(ctx, bob, w.ID, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, model.ErrForbidden))

	_, err = f.ledger.Deposit(ctx, alice, w.ID, decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(ctx, alice, w.ID, decimal.RequireFromString("2.50"), "order:7")
	require.NoError(t, err)

	txns, err := f.ledger.ListTransactions(ctx, alice, w.ID, 0, -5)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "order:7", txns[0].Reference)
	assert.Equal(t, model.TransactionDeposit, txns[1].Type)

	_, err = f.ledger.ListTransactions(ctx, bob, w.ID, 10, 0)
	assert.True(t, errors.Is(err, model.ErrForbidden))
}

func TestLedger_WalletsAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.CreateWallet(ctx, model.Principal{}, "x", "")
	assert.True(t, errors.Is(err, model.ErrForbidden))

	w := f.wallet(t, alice, "0")
	assert.Equal(t, defaultWalletType, w.WalletType)

	list, err := f.ledger.ListWallets(ctx, alice, alice.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.ledger.ListWallets(ctx, bob, alice.UserID)
	assert.True(t, errors.Is(err, model.ErrForbidden))

	list, err = f.ledger.ListWallets(ctx, admin, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.ledger.GetWallet(ctx, bob, w.ID)
	assert.True(t, errors.Is(err, model.ErrForbidden))
}
