// Package api описывает HTTP-контракт между сервисами: тела запросов и ответов и соответствие ошибок статусам.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/resilience"
)

// ErrorResponse описывает тело ответа с ошибкой.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AvailabilityResponse описывает ответ проверки наличия товара.
type AvailabilityResponse struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	InStock  bool   `json:"in_stock"`
}

// StockRequest описывает тело запросов на списание и возврат товара.
type StockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// Product описывает товар склада.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

// Wallet описывает кошелёк пользователя.
type Wallet struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	WalletType string          `json:"wallet_type"`
	WalletName string          `json:"wallet_name"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Transaction описывает запись журнала кошелька.
type Transaction struct {
	ID        int64           `json:"id"`
	WalletID  int64           `json:"wallet_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// WithdrawRequest описывает тело запроса на списание с кошелька.
type WithdrawRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"dpositive"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
}

// DepositRequest описывает тело запроса на пополнение кошелька.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"dpositive"`
}

// CreateWalletRequest описывает тело запроса на создание кошелька.
type CreateWalletRequest struct {
	WalletName string `json:"wallet_name" validate:"max=64"`
	WalletType string `json:"wallet_type" validate:"omitempty,oneof=PERSONAL SAVINGS BUSINESS"`
}

// FromProduct преобразует доменный товар в тело ответа.
func FromProduct(p *model.Product) Product {
	return Product{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price, StockQuantity: p.StockQuantity}
}

// ToModel преобразует тело ответа в доменный товар.
func (p Product) ToModel() *model.Product {
	return &model.Product{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price, StockQuantity: p.StockQuantity}
}

// FromWallet преобразует доменный кошелёк в тело ответа.
func FromWallet(w *model.Wallet) Wallet {
	return Wallet{ID: w.ID, UserID: w.UserID, Balance: w.Balance, WalletType: w.WalletType, WalletName: w.WalletName, CreatedAt: w.CreatedAt}
}

// ToModel преобразует тело ответа в доменный кошелёк.
func (w Wallet) ToModel() model.Wallet {
	return model.Wallet{ID: w.ID, UserID: w.UserID, Balance: w.Balance, WalletType: w.WalletType, WalletName: w.WalletName, CreatedAt: w.CreatedAt}
}

// FromTransaction преобразует запись журнала в тело ответа.
func FromTransaction(t *model.Transaction) Transaction {
	return Transaction{ID: t.ID, WalletID: t.WalletID, Type: string(t.Type), Amount: t.Amount, Reference: t.Reference, Timestamp: t.Timestamp}
}

// ToModel преобразует тело ответа в запись журнала.
func (t Transaction) ToModel() *model.Transaction {
	return &model.Transaction{ID: t.ID, WalletID: t.WalletID, Type: model.TransactionType(t.Type), Amount: t.Amount, Reference: t.Reference, Timestamp: t.Timestamp}
}

// StatusCode возвращает HTTP-статус для доменной ошибки.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInsufficientStock), errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorFromStatus превращает ответ с ошибкой в доменную ошибку.
// Окончательные отказы помечаются resilience.Permanent, остальные можно повторять.
func errorFromStatus(status int, body ErrorResponse) error {
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusNotFound:
		return resilience.Permanent(fmt.Errorf("%w: %s", model.ErrNotFound, msg))
	case http.StatusForbidden, http.StatusUnauthorized:
		return resilience.Permanent(fmt.Errorf("%w: %s", model.ErrForbidden, msg))
	case http.StatusConflict:
		return resilience.Permanent(fmt.Errorf("%w: %s", model.ErrInsufficientStock, msg))
	case http.StatusPaymentRequired:
		return resilience.Permanent(fmt.Errorf("%w: %s", model.ErrInsufficientFunds, msg))
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return resilience.Permanent(fmt.Errorf("%w: %s", model.ErrValidation, msg))
	}

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}
	return resilience.Permanent(fmt.Errorf("unexpected status %d: %s", status, msg))
}

// Do выполняет JSON-запрос. Тело ответа декодируется в out, если out не nil.
// Ошибки транспорта и статусы 5xx/429 возвращаются как повторяемые.
func Do(ctx context.Context, hc *http.Client, method, url, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return errorFromStatus(resp.StatusCode, e)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
