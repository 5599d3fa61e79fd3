package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/idempotency"
	"github.com/mmeshcher/checkout-saga/internal/middleware"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

type stubOrders struct {
	createCalls int
	createResp  *model.Order
	createErr   error

	getResp *model.Order
	getErr  error

	listResp []model.Order
	listErr  error

	updateStatus model.OrderStatus
	updateErr    error
}

func (s *stubOrders) CreateOrder(ctx context.Context, p model.Principal, cartID int64) (*model.Order, error) {
	s.createCalls++
	return s.createResp, s.createErr
}

func (s *stubOrders) GetOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error) {
	return s.getResp, s.getErr
}

func (s *stubOrders) ListOrders(ctx context.Context, p model.Principal) ([]model.Order, error) {
	return s.listResp, s.listErr
}

func (s *stubOrders) CancelOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error) {
	return s.getResp, s.getErr
}

func (s *stubOrders) UpdateOrderStatus(ctx context.Context, p model.Principal, orderID int64, status model.OrderStatus) (*model.Order, error) {
	s.updateStatus = status
	return s.getResp, s.updateErr
}

type stubCarts struct {
	cart *model.Cart
	err  error
}

func (s *stubCarts) AddItem(ctx context.Context, p model.Principal, sku string, qty int) (*model.Cart, error) {
	return s.cart, s.err
}

func (s *stubCarts) GetCart(ctx context.Context, p model.Principal) (*model.Cart, error) {
	return s.cart, s.err
}

const testSecret = "test-secret"

func newTestLogger(t *testing.T) *zap.Logger {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return logger
}

func token(t *testing.T, userID int64, role model.Role) string {
	t.Helper()

	tok, err := middleware.NewAuthMiddleware(testSecret).Issue(userID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func newShopRouter(t *testing.T, orders OrderService, carts CartService, idem IdempotencyStore) http.Handler {
	t.Helper()

	logger := newTestLogger(t)
	h := NewShopHandler(orders, carts, idem, logger)
	return h.SetupRouter(RouterOptions{
		Logger: logger,
		Auth:   middleware.NewAuthMiddleware(testSecret),
	})
}

func doRequest(t *testing.T, h http.Handler, method, target, tok string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func shippedOrder() *model.Order {
	txID := int64(3)
	return &model.Order{
		ID:          10,
		UserID:      1,
		Status:      model.OrderStatusShipped,
		TotalAmount: decimal.NewFromInt(20),
		Items:       []model.OrderItem{{SKU: "A", Quantity: 2, PriceAtPurchase: decimal.NewFromInt(10)}},
		Payment:     &model.Payment{ID: 1, Amount: decimal.NewFromInt(20), Status: model.PaymentStatusSuccess, TransactionID: &txID},
		SagaStep:    model.SagaStepCompleted,
	}
}

func TestCreateOrder_Created(t *testing.T) {
	orders := &stubOrders{createResp: shippedOrder()}
	h := newShopRouter(t, orders, &stubCarts{}, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/orders", token(t, 1, model.RoleUser), api.CreateOrderRequest{CartID: 5}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp api.Order
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "SHIPPED" || resp.Payment == nil || resp.Payment.Status != "SUCCESS" {
		t.Fatalf("unexpected order %+v", resp)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("request id header missing")
	}
}

func TestCreateOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	o := shippedOrder()
	orders := &stubOrders{createResp: o, getResp: o}
	h := newShopRouter(t, orders, &stubCarts{}, idempotency.NewMemoryStore())

	tok := token(t, 1, model.RoleUser)
	headers := map[string]string{IdempotencyKeyHeader: "checkout-1"}

	first := doRequest(t, h, http.MethodPost, "/api/orders", tok, api.CreateOrderRequest{CartID: 5}, headers)
	second := doRequest(t, h, http.MethodPost, "/api/orders", tok, api.CreateOrderRequest{CartID: 5}, headers)

	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusCreated)
	}
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want %d", second.Code, http.StatusOK)
	}
	if orders.createCalls != 1 {
		t.Fatalf("create calls = %d, want 1", orders.createCalls)
	}
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "empty cart", err: model.ErrEmptyCart, wantCode: http.StatusUnprocessableEntity, wantBody: "EMPTY_CART"},
		{name: "insufficient stock", err: model.ErrInsufficientStock, wantCode: http.StatusConflict, wantBody: "INSUFFICIENT_STOCK"},
		{name: "foreign cart", err: model.ErrForbidden, wantCode: http.StatusForbidden, wantBody: "FORBIDDEN"},
		{name: "missing cart", err: model.ErrNotFound, wantCode: http.StatusNotFound, wantBody: "NOT_FOUND"},
		{name: "upstream down", err: model.ErrUpstreamUnavailable, wantCode: http.StatusServiceUnavailable, wantBody: "UPSTREAM_UNAVAILABLE"},
		{name: "internal", err: errors.New("db is on fire"), wantCode: http.StatusInternalServerError, wantBody: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newShopRouter(t, &stubOrders{createErr: tt.err}, &stubCarts{}, nil)

			rec := doRequest(t, h, http.MethodPost, "/api/orders", token(t, 1, model.RoleUser), api.CreateOrderRequest{CartID: 5}, nil)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp api.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantBody {
				t.Fatalf("code = %q, want %q", resp.Code, tt.wantBody)
			}
			if tt.wantCode == http.StatusInternalServerError && resp.Message == tt.err.Error() {
				t.Fatalf("internal error details leaked to client")
			}
		})
	}
}

func TestCreateOrder_RejectsBadRequests(t *testing.T) {
	orders := &stubOrders{createResp: shippedOrder()}
	h := newShopRouter(t, orders, &stubCarts{}, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/orders", "", api.CreateOrderRequest{CartID: 5}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/orders", token(t, 1, model.RoleUser), api.CreateOrderRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero cart id: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/orders", token(t, 1, model.RoleUser), map[string]any{"cart": 1}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	if orders.createCalls != 0 {
		t.Fatalf("service must not be called for bad requests")
	}
}

func TestListOrders_NoContent(t *testing.T) {
	h := newShopRouter(t, &stubOrders{listResp: []model.Order{}}, &stubCarts{}, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/orders", token(t, 1, model.RoleUser), nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	orders := &stubOrders{getResp: shippedOrder()}
	h := newShopRouter(t, orders, &stubCarts{}, nil)
	body := api.UpdateOrderStatusRequest{Status: "SHIPPED"}

	rec := doRequest(t, h, http.MethodPut, "/api/admin/orders/10/status", token(t, 1, model.RoleUser), body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user: status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = doRequest(t, h, http.MethodPut, "/api/admin/orders/10/status", token(t, 99, model.RoleAdmin), api.UpdateOrderStatusRequest{Status: "LOST"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodPut, "/api/admin/orders/10/status", token(t, 99, model.RoleAdmin), body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if orders.updateStatus != model.OrderStatusShipped {
		t.Fatalf("status passed to service = %q", orders.updateStatus)
	}

	orders.updateErr = model.ErrInvalidTransition
	rec = doRequest(t, h, http.MethodPut, "/api/admin/orders/10/status", token(t, 99, model.RoleAdmin), body, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition: status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCancelOrder_InvalidID(t *testing.T) {
	h := newShopRouter(t, &stubOrders{}, &stubCarts{}, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/orders/abc/cancel", token(t, 1, model.RoleUser), nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCart(t *testing.T) {
	cart := &model.Cart{ID: 1, UserID: 1, Items: []model.CartItem{{SKU: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("1.5")}}}
	h := newShopRouter(t, &stubOrders{}, &stubCarts{cart: cart}, nil)
	tok := token(t, 1, model.RoleUser)

	rec := doRequest(t, h, http.MethodPost, "/api/cart/items", tok, api.AddCartItemRequest{SKU: "A", Quantity: 2}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/cart", tok, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp api.Cart
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Total.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("total = %s, want 3", resp.Total)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/cart/items", tok, api.AddCartItemRequest{SKU: "A"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero quantity: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHealthz(t *testing.T) {
	logger := newTestLogger(t)
	h := NewShopHandler(&stubOrders{}, &stubCarts{}, nil, logger)

	ok := h.SetupRouter(RouterOptions{Logger: logger, Health: map[string]HealthCheck{
		"db": func(context.Context) error { return nil },
	}})
	rec := doRequest(t, ok, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	down := h.SetupRouter(RouterOptions{Logger: logger, Health: map[string]HealthCheck{
		"db": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec = doRequest(t, down, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestNotFound(t *testing.T) {
	h := newShopRouter(t, &stubOrders{}, &stubCarts{}, nil)

	rec := doRequest(t, h, http.MethodGet, "/nope", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
