package handler

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

// IdempotencyKeyHeader задаёт заголовок, по которому повтор запроса на оформление возвращает тот же заказ.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderService определяет операции с заказами, используемые обработчиками магазина.
type OrderService interface {
	CreateOrder(ctx context.Context, p model.Principal, cartID int64) (*model.Order, error)
	GetOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error)
	ListOrders(ctx context.Context, p model.Principal) ([]model.Order, error)
	CancelOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, p model.Principal, orderID int64, status model.OrderStatus) (*model.Order, error)
}

// CartService определяет операции с корзиной.
type CartService interface {
	AddItem(ctx context.Context, p model.Principal, sku string, qty int) (*model.Cart, error)
	GetCart(ctx context.Context, p model.Principal) (*model.Cart, error)
}

// IdempotencyStore запоминает заказ, созданный по ключу Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID int64, clientKey string) (int64, bool, error)
	Remember(ctx context.Context, userID int64, clientKey string, orderID int64) error
}

// ShopHandler реализует HTTP API магазина.
type ShopHandler struct {
	orders OrderService
	carts  CartService
	idem   IdempotencyStore
	logger *zap.Logger
}

// NewShopHandler создаёт обработчики магазина. idem может быть nil, тогда заголовок Idempotency-Key игнорируется.
func NewShopHandler(orders OrderService, carts CartService, idem IdempotencyStore, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{orders: orders, carts: carts, idem: idem, logger: logger}
}

// CreateOrder оформляет заказ из корзины. Заказ, отменённый в ходе оформления, тоже возвращается с кодом 201.
func (h *ShopHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && h.idem != nil {
		if o, ok := h.replay(r, p, key); ok {
			writeJSON(w, http.StatusOK, api.FromOrder(o))
			return
		}
	}

	o, err := h.orders.CreateOrder(r.Context(), p, req.CartID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if key != "" && h.idem != nil {
		if err := h.idem.Remember(r.Context(), p.UserID, key, o.ID); err != nil {
			logger.FromContext(r.Context(), h.logger).Warn("remember idempotency key", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, api.FromOrder(o))
}

// replay возвращает заказ, уже созданный с этим ключом. Ошибка хранилища ключей не блокирует оформление.
func (h *ShopHandler) replay(r *http.Request, p model.Principal, key string) (*model.Order, bool) {
	log := logger.FromContext(r.Context(), h.logger)

	orderID, found, err := h.idem.Lookup(r.Context(), p.UserID, key)
	if err != nil {
		log.Warn("lookup idempotency key", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	o, err := h.orders.GetOrder(r.Context(), p, orderID)
	if err != nil {
		log.Warn("load replayed order", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, false
	}
	log.Info("order creation replayed", zap.Int64("order_id", orderID))
	return o, true
}

// ListOrders возвращает заказы текущего пользователя.
func (h *ShopHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]api.Order, 0, len(orders))
	for i := range orders {
		resp = append(resp, api.FromOrder(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ по ID.
func (h *ShopHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.orders.GetOrder)
}

// CancelOrder отменяет заказ.
func (h *ShopHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.orders.CancelOrder)
}

func (h *ShopHandler) withOrder(w http.ResponseWriter, r *http.Request, fn func(context.Context, model.Principal, int64) (*model.Order, error)) {
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

	o, err := fn(r.Context(), p, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrder(o))
}

// UpdateOrderStatus меняет статус заказа. Доступно только администратору.
func (h *ShopHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !p.IsAdmin() {
		writeError(w, r, h.logger, fmt.Errorf("%w: admin role required", model.ErrForbidden))
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.UpdateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), p, id, model.OrderStatus(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrder(o))
}

// AddCartItem добавляет товар в корзину текущего пользователя.
func (h *ShopHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.AddCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), p, req.SKU, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromCart(cart))
}

// GetCart возвращает корзину текущего пользователя.
func (h *ShopHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	cart, err := h.carts.GetCart(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromCart(cart))
}
