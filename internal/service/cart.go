package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/validation"
)

// CartService управляет корзинами пользователей.
type CartService struct {
	repo      ShopRepository
	inventory Inventory
	logger    *zap.Logger
}

// NewCartService создаёт сервис корзин.
func NewCartService(repo ShopRepository, inventory Inventory, logger *zap.Logger) *CartService {
	return &CartService{repo: repo, inventory: inventory, logger: logger}
}

// AddItem добавляет товар в корзину вызывающего. Название и цена берутся со склада в момент добавления.
func (s *CartService) AddItem(ctx context.Context, p model.Principal, sku string, qty int) (*model.Cart, error) {
	if p.UserID == 0 {
		return nil, fmt.Errorf("%w: anonymous caller", model.ErrForbidden)
	}
	if !validation.IsValidSKU(sku) {
		return nil, fmt.Errorf("%w: invalid sku %q", model.ErrValidation, sku)
	}
	if err := validation.PositiveQuantity(qty); err != nil {
		return nil, err
	}

	product, err := s.inventory.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.AddCartItem(ctx, p.UserID, model.CartItem{
		SKU:         product.SKU,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("cart item added",
		zap.Int64("cart_id", cart.ID),
		zap.String("sku", sku),
		zap.Int("quantity", qty),
	)
	return cart, nil
}

// GetCart возвращает корзину вызывающего. Если корзины ещё нет, возвращается пустая.
func (s *CartService) GetCart(ctx context.Context, p model.Principal) (*model.Cart, error) {
	cart, err := s.repo.GetCartByUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.Cart{UserID: p.UserID, Items: []model.CartItem{}}, nil
		}
		return nil, err
	}
	return cart, nil
}
