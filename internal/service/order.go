package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/events"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

const (
	eventProducer  = "shop"
	publishTimeout = 3 * time.Second
)

// OrderService оформляет заказы и управляет их статусами.
type OrderService struct {
	repo      ShopRepository
	inventory Inventory
	wallets   Wallets
	publisher events.Publisher
	logger    *zap.Logger
}

// NewOrderService создаёт сервис заказов. inventory и wallets должны быть защищены повторами и размыкателем.
func NewOrderService(repo ShopRepository, inventory Inventory, wallets Wallets, publisher events.Publisher, logger *zap.Logger) *OrderService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OrderService{
		repo:      repo,
		inventory: inventory,
		wallets:   wallets,
		publisher: publisher,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *OrderService) Close() error {
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("close publisher", zap.Error(err))
	}
	return s.repo.Close()
}

// Ping проверяет доступность хранилища.
func (s *OrderService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// GetOrder возвращает заказ владельцу или администратору.
func (s *OrderService) GetOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.UserID) {
		return nil, fmt.Errorf("%w: order %d", model.ErrForbidden, orderID)
	}
	return o, nil
}

// ListOrders возвращает заказы вызывающего, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context, p model.Principal) ([]model.Order, error) {
	if p.UserID == 0 {
		return nil, fmt.Errorf("%w: anonymous caller", model.ErrForbidden)
	}
	return s.repo.ListOrdersByUser(ctx, p.UserID)
}

// CancelOrder отменяет заказ по запросу владельца или администратора.
// Оплата помечается FAILED. Деньги не возвращаются и товар на склад не возвращается.
func (s *OrderService) CancelOrder(ctx context.Context, p model.Principal, orderID int64) (*model.Order, error) {
	o, err := s.GetOrder(ctx, p, orderID)
	if err != nil {
		return nil, err
	}

	from, prev := o.Status, cursorOf(o)
	if err := o.Transition(model.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if o.Payment != nil {
		o.Payment.Status = model.PaymentStatusFailed
	}
	if o.FailureReason == "" {
		o.FailureReason = "cancelled by user"
		if p.IsAdmin() && p.UserID != o.UserID {
			o.FailureReason = "cancelled by admin"
		}
	}

	if err := s.save(ctx, o, from, prev); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("order cancelled",
		zap.Int64("order_id", o.ID),
		zap.Int64("by_user", p.UserID),
	)
	s.publish(ctx, events.TopicOrderCancelled, events.EventOrderCancelled, o)
	return o, nil
}

// UpdateOrderStatus меняет статус заказа по таблице допустимых переходов. Доступно только администратору.
// Статус оплаты синхронизируется: PAID делает оплату SUCCESS, CANCELLED делает её FAILED.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, p model.Principal, orderID int64, status model.OrderStatus) (*model.Order, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", model.ErrForbidden)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from, prev := o.Status, cursorOf(o)
	if err := o.Transition(status); err != nil {
		return nil, err
	}
	if o.Payment != nil {
		switch status {
		case model.OrderStatusPaid:
			o.Payment.Status = model.PaymentStatusSuccess
		case model.OrderStatusCancelled:
			o.Payment.Status = model.PaymentStatusFailed
		}
	}

	if err := s.save(ctx, o, from, prev); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("order status updated",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	if status == model.OrderStatusCancelled {
		s.publish(ctx, events.TopicOrderCancelled, events.EventOrderCancelled, o)
	}
	return o, nil
}

// save сохраняет заказ после ручной смены статуса. Заказ в PENDING сохраняется только поверх
// прочитанного курсора саги, иначе возвращается model.ErrConcurrentUpdate.
func (s *OrderService) save(ctx context.Context, o *model.Order, from model.OrderStatus, prev cursor) error {
	if from == model.OrderStatusPending {
		return s.repo.UpdateOrderCursor(ctx, o, prev.step, prev.reserved)
	}
	return s.repo.UpdateOrder(ctx, o)
}

// publish отправляет событие о заказе. Ошибка отправки только логируется.
func (s *OrderService) publish(ctx context.Context, topic, eventType string, o *model.Order) {
	log := logger.FromContext(ctx, s.logger)

	payload := events.OrderFinalizedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		Reason:      o.FailureReason,
	}
	if o.Payment != nil {
		payload.PaymentStatus = string(o.Payment.Status)
	}

	key := strconv.FormatInt(o.ID, 10)
	env, err := events.NewEnvelope(eventType, eventProducer, key, payload)
	if err != nil {
		log.Warn("build event", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, topic, key, env); err != nil {
		log.Warn("publish event", zap.String("topic", topic), zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
