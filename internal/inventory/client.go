// Package inventory предоставляет HTTP-клиент сервиса склада.
package inventory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие со складом.
// Отказы склада (404, 409, 400) возвращаются как окончательные ошибки, сетевые сбои и 5xx можно повторять.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент склада по указанному адресу.
func NewClient(baseURL string, timeout time.Duration) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// IsInStock проверяет, есть ли на складе qty единиц товара.
func (c *Client) IsInStock(ctx context.Context, sku string, qty int) (bool, error) {
	u := fmt.Sprintf("%s/api/inventory/%s/availability?quantity=%s",
		c.baseURL, url.PathEscape(sku), strconv.Itoa(qty))

	var resp api.AvailabilityResponse
	if err := api.Do(ctx, c.httpClient, http.MethodGet, u, "", nil, &resp); err != nil {
		return false, err
	}
	return resp.InStock, nil
}

// DecreaseStock списывает qty единиц товара.
func (c *Client) DecreaseStock(ctx context.Context, sku string, qty int) error {
	u := fmt.Sprintf("%s/api/inventory/%s/decrease", c.baseURL, url.PathEscape(sku))
	return api.Do(ctx, c.httpClient, http.MethodPost, u, "", api.StockRequest{Quantity: qty}, nil)
}

// IncreaseStock возвращает qty единиц товара на склад.
func (c *Client) IncreaseStock(ctx context.Context, sku string, qty int) error {
	u := fmt.Sprintf("%s/api/inventory/%s/increase", c.baseURL, url.PathEscape(sku))
	return api.Do(ctx, c.httpClient, http.MethodPost, u, "", api.StockRequest{Quantity: qty}, nil)
}

// GetProduct возвращает товар по SKU.
func (c *Client) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	u := fmt.Sprintf("%s/api/products/%s", c.baseURL, url.PathEscape(sku))

	var resp api.Product
	if err := api.Do(ctx, c.httpClient, http.MethodGet, u, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.ToModel(), nil
}
