package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/validation"
)

// StockService определяет операции склада.
type StockService interface {
	GetProduct(ctx context.Context, sku string) (*model.Product, error)
	IsInStock(ctx context.Context, sku string, qty int) (bool, error)
	DecreaseStock(ctx context.Context, sku string, qty int) error
	IncreaseStock(ctx context.Context, sku string, qty int) error
}

// InventoryHandler реализует HTTP API склада.
type InventoryHandler struct {
	stock  StockService
	logger *zap.Logger
}

// NewInventoryHandler создаёт обработчики склада.
func NewInventoryHandler(stock StockService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{stock: stock, logger: logger}
}

// Availability сообщает, есть ли на складе запрошенное количество товара (по умолчанию 1).
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	sku, err := skuParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	qty, err := intQuery(r, "quantity", 1)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ok, err := h.stock.IsInStock(r.Context(), sku, qty)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AvailabilityResponse{SKU: sku, Quantity: qty, InStock: ok})
}

// Decrease списывает товар со склада.
func (h *InventoryHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, h.stock.DecreaseStock)
}

// Increase возвращает товар на склад.
func (h *InventoryHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, h.stock.IncreaseStock)
}

func (h *InventoryHandler) changeStock(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int) error) {
	sku, err := skuParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.StockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := fn(r.Context(), sku, req.Quantity); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProduct возвращает товар по SKU.
func (h *InventoryHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	sku, err := skuParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.stock.GetProduct(r.Context(), sku)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromProduct(p))
}

func skuParam(r *http.Request) (string, error) {
	sku := chi.URLParam(r, "sku")
	if !validation.IsValidSKU(sku) {
		return "", fmt.Errorf("%w: invalid sku %q", model.ErrValidation, sku)
	}
	return sku, nil
}
