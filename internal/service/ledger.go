package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/validation"
)

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 500
	defaultWalletType        = "PERSONAL"
)

// LedgerService ведёт балансы кошельков. Баланс никогда не становится отрицательным,
// каждое изменение баланса сопровождается записью в журнале.
type LedgerService struct {
	repo   LedgerRepository
	logger *zap.Logger
}

// NewLedgerService создаёт сервис кошельков.
func NewLedgerService(repo LedgerRepository, logger *zap.Logger) *LedgerService {
	return &LedgerService{repo: repo, logger: logger}
}

// Close закрывает ресурсы сервиса.
func (s *LedgerService) Close() error {
	return s.repo.Close()
}

// Ping проверяет доступность хранилища.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// CreateWallet создаёт кошелёк вызывающего с нулевым балансом.
func (s *LedgerService) CreateWallet(ctx context.Context, p model.Principal, name, walletType string) (*model.Wallet, error) {
	if p.UserID == 0 {
		return nil, fmt.Errorf("%w: anonymous caller", model.ErrForbidden)
	}
	if walletType == "" {
		walletType = defaultWalletType
	}
	w := &model.Wallet{
		UserID:     p.UserID,
		Balance:    decimal.Zero,
		WalletType: walletType,
		WalletName: name,
	}
	if err := s.repo.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("wallet created", zap.Int64("wallet_id", w.ID), zap.Int64("user_id", w.UserID))
	return w, nil
}

// GetWallet возвращает кошелёк владельцу или администратору.
func (s *LedgerService) GetWallet(ctx context.Context, p model.Principal, walletID int64) (*model.Wallet, error) {
	return s.authorizedWallet(ctx, p, walletID)
}

// ListWallets возвращает кошельки пользователя userID. Чужие кошельки доступны только администратору.
func (s *LedgerService) ListWallets(ctx context.Context, p model.Principal, userID int64) ([]model.Wallet, error) {
	if !p.CanAccess(userID) {
		return nil, fmt.Errorf("%w: wallets of user %d", model.ErrForbidden, userID)
	}
	return s.repo.ListWalletsByUser(ctx, userID)
}

// Deposit зачисляет amount на кошелёк. Права проверяются до захвата блокировки кошелька.
func (s *LedgerService) Deposit(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal) (*model.Transaction, error) {
	if err := validation.PositiveAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.authorizedWallet(ctx, p, walletID); err != nil {
		return nil, err
	}

	txn, err := s.repo.Deposit(ctx, walletID, amount)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("wallet deposit",
		zap.Int64("wallet_id", walletID),
		zap.String("amount", amount.String()),
		zap.Int64("transaction_id", txn.ID),
	)
	return txn, nil
}

// Withdraw списывает amount с кошелька. При нехватке средств возвращает model.ErrInsufficientFunds
// и ничего не меняет. Повтор с тем же reference возвращает уже записанную операцию.
func (s *LedgerService) Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	if err := validation.PositiveAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.authorizedWallet(ctx, p, walletID); err != nil {
		return nil, err
	}

	txn, err := s.repo.Withdraw(ctx, walletID, amount, reference)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("wallet withdraw",
		zap.Int64("wallet_id", walletID),
		zap.String("amount", amount.String()),
		zap.String("reference", reference),
		zap.Int64("transaction_id", txn.ID),
	)
	return txn, nil
}

// ListTransactions возвращает операции кошелька, новые первыми.
func (s *LedgerService) ListTransactions(ctx context.Context, p model.Principal, walletID int64, limit, offset int) ([]model.Transaction, error) {
	if _, err := s.authorizedWallet(ctx, p, walletID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, walletID, limit, offset)
}

func (s *LedgerService) authorizedWallet(ctx context.Context, p model.Principal, walletID int64) (*model.Wallet, error) {
	w, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(w.UserID) {
		return nil, fmt.Errorf("%w: wallet %d", model.ErrForbidden, walletID)
	}
	return w, nil
}
