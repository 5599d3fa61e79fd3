// Package wallet предоставляет HTTP-клиент сервиса кошельков.
package wallet

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом кошельков.
// Токен вызывающего передаётся в заголовке Authorization.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент кошельков по указанному адресу.
func NewClient(baseURL string, timeout time.Duration) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// ListWallets возвращает кошельки пользователя principal.
func (c *Client) ListWallets(ctx context.Context, p model.Principal) ([]model.Wallet, error) {
	u := fmt.Sprintf("%s/api/wallets?user_id=%d", c.baseURL, p.UserID)

	var resp []api.Wallet
	if err := api.Do(ctx, c.httpClient, http.MethodGet, u, p.Token, nil, &resp); err != nil {
		return nil, err
	}

	wallets := make([]model.Wallet, 0, len(resp))
	for _, w := range resp {
		wallets = append(wallets, w.ToModel())
	}
	return wallets, nil
}

// Withdraw списывает amount с кошелька. reference делает повторное списание идемпотентным.
func (c *Client) Withdraw(ctx context.Context, p model.Principal, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	u := fmt.Sprintf("%s/api/wallets/%d/withdraw", c.baseURL, walletID)

	var resp api.Transaction
	req := api.WithdrawRequest{Amount: amount, Reference: reference}
	if err := api.Do(ctx, c.httpClient, http.MethodPost, u, p.Token, req, &resp); err != nil {
		return nil, err
	}
	return resp.ToModel(), nil
}
