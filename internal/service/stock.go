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

// StockService охраняет остатки склада: товар не может быть продан сверх остатка.
type StockService struct {
	repo   StockRepository
	logger *zap.Logger
}

// NewStockService создаёт сервис склада.
func NewStockService(repo StockRepository, logger *zap.Logger) *StockService {
	return &StockService{repo: repo, logger: logger}
}

// Close закрывает ресурсы сервиса.
func (s *StockService) Close() error {
	return s.repo.Close()
}

// Ping проверяет доступность хранилища.
func (s *StockService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// GetProduct возвращает товар по SKU.
func (s *StockService) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	if !validation.IsValidSKU(sku) {
		return nil, fmt.Errorf("%w: invalid sku %q", model.ErrValidation, sku)
	}
	return s.repo.GetProduct(ctx, sku)
}

// IsInStock сообщает, есть ли на складе qty единиц товара. Ответ носит справочный характер:
// гарантию даёт только DecreaseStock. Неизвестный товар считается отсутствующим.
func (s *StockService) IsInStock(ctx context.Context, sku string, qty int) (bool, error) {
	if err := validation.PositiveQuantity(qty); err != nil {
		return false, err
	}
	p, err := s.GetProduct(ctx, sku)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.StockQuantity >= qty, nil
}

// DecreaseStock атомарно проверяет остаток и списывает qty единиц.
func (s *StockService) DecreaseStock(ctx context.Context, sku string, qty int) error {
	if err := validation.PositiveQuantity(qty); err != nil {
		return err
	}
	if err := s.repo.DecreaseStock(ctx, sku, qty); err != nil {
		return err
	}
	logger.FromContext(ctx, s.logger).Info("stock decreased", zap.String("sku", sku), zap.Int("quantity", qty))
	return nil
}

// IncreaseStock возвращает qty единиц товара на склад.
func (s *StockService) IncreaseStock(ctx context.Context, sku string, qty int) error {
	if err := validation.PositiveQuantity(qty); err != nil {
		return err
	}
	if err := s.repo.IncreaseStock(ctx, sku, qty); err != nil {
		return err
	}
	logger.FromContext(ctx, s.logger).Info("stock increased", zap.String("sku", sku), zap.Int("quantity", qty))
	return nil
}

// SeedProducts сохраняет начальный каталог, если товара ещё нет.
func (s *StockService) SeedProducts(ctx context.Context, products []model.Product) error {
	for i := range products {
		p := products[i]
		if _, err := s.repo.GetProduct(ctx, p.SKU); err == nil {
			continue
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if err := s.repo.SaveProduct(ctx, &p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
	}
	return nil
}
