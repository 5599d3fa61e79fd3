package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

// LedgerService определяет операции с кошельками.
type LedgerService interface {
	CreateWallet(ctx context.Context, p model.Principal, name, walletType string) (*model.Wallet, error)
	GetWallet(ctx context.Context, p model.Principal, walletID int64) (*model.Wallet, error)
	ListWallets(ctx context.Context, p model.Principal, userID int64) ([]model.Wallet, error)
	Deposit(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal) (*model.Transaction, error)
	Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, p model.Principal, walletID int64, limit, offset int) ([]model.Transaction, error)
}

// WalletHandler реализует HTTP API кошельков.
type WalletHandler struct {
	ledger LedgerService
	logger *zap.Logger
}

// NewWalletHandler создаёт обработчики кошельков.
func NewWalletHandler(ledger LedgerService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, logger: logger}
}

// ListWallets возвращает кошельки пользователя из параметра user_id (по умолчанию текущего).
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID, err := intQuery(r, "user_id", int(p.UserID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	wallets, err := h.ledger.ListWallets(r.Context(), p, int64(userID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := make([]api.Wallet, 0, len(wallets))
	for i := range wallets {
		resp = append(resp, api.FromWallet(&wallets[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateWallet создаёт кошелёк текущего пользователя.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.CreateWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	wallet, err := h.ledger.CreateWallet(r.Context(), p, req.WalletName, req.WalletType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromWallet(wallet))
}

// GetWallet возвращает кошелёк по ID.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	wallet, err := h.ledger.GetWallet(r.Context(), p, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromWallet(wallet))
}

// Withdraw списывает средства с кошелька.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	txn, err := h.ledger.Withdraw(r.Context(), p, id, req.Amount, req.Reference)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTransaction(txn))
}

// Deposit пополняет кошелёк.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	txn, err := h.ledger.Deposit(r.Context(), p, id, req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTransaction(txn))
}

// ListTransactions возвращает журнал операций кошелька, новые первыми.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	txns, err := h.ledger.ListTransactions(r.Context(), p, id, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := make([]api.Transaction, 0, len(txns))
	for i := range txns {
		resp = append(resp, api.FromTransaction(&txns[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
