package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/events"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/metrics"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

const (
	reasonNoWallet      = "no wallet available"
	reasonStockReserve  = "stock reservation failed"
	reasonPaymentFailed = "payment failed"
)

// Reference возвращает ссылку списания для заказа. По ней сервис кошельков распознаёт повторное списание.
func Reference(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// CreateOrder оформляет заказ из корзины: проверяет остатки, резервирует товар,
// списывает деньги и при любой ошибке после сохранения заказа выполняет компенсацию.
//
// Ошибка до сохранения заказа оставляет корзину. После сохранения сага не зависит от отмены ctx
// и возвращает заказ в статусе SHIPPED или CANCELLED. Если заказ тем временем отменили
// или его забрало восстановление, возвращается его текущее состояние.
func (s *OrderService) CreateOrder(ctx context.Context, p model.Principal, cartID int64) (*model.Order, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.Int64("cart_id", cartID), zap.Int64("user_id", p.UserID))

	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.UserID != p.UserID {
		return nil, fmt.Errorf("%w: cart %d", model.ErrForbidden, cartID)
	}
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("%w: cart %d", model.ErrEmptyCart, cartID)
	}

	for _, it := range cart.Items {
		ok, err := s.inventory.IsInStock(ctx, it.SKU, it.Quantity)
		if err != nil {
			log.Warn("stock check failed", zap.String("sku", it.SKU), zap.Error(err))
		}
		if !ok {
			metrics.IncSagaOutcome("rejected")
			return nil, fmt.Errorf("%w: %s", model.ErrInsufficientStock, it.SKU)
		}
	}

	order := newOrderFromCart(cart)

	// после сохранения заказа сага доводится до конца, даже если клиент отключился
	ctx = context.WithoutCancel(ctx)

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log = log.With(zap.Int64("order_id", order.ID))
	log.Info("order created", zap.String("total", order.TotalAmount.StringFixed(2)))

	saved := cursorOf(order)
	txn, reason, err := s.reserveAndCharge(ctx, log, p, order, &saved)
	if err != nil {
		return s.yield(ctx, log, order, saved, cart.ID)
	}

	if reason == "" {
		s.complete(order, txn)
		if err := s.persist(ctx, order, &saved); err != nil {
			if errors.Is(err, model.ErrConcurrentUpdate) {
				log.Error("order charged but changed concurrently, requires manual reconciliation",
					zap.Int64("transaction_id", txn.ID))
				return s.yield(ctx, log, order, saved, cart.ID)
			}
			return nil, fmt.Errorf("persist order: %w", err)
		}
		metrics.IncSagaOutcome("completed")
		log.Info("order completed", zap.Int64("transaction_id", txn.ID))
	} else {
		s.cancel(order, reason)
		if err := s.persist(ctx, order, &saved); err != nil {
			if errors.Is(err, model.ErrConcurrentUpdate) {
				return s.yield(ctx, log, order, saved, cart.ID)
			}
			// сохранённые резервы вернёт восстановление, сага возвращает только несохранённые
			s.restock(ctx, log, order.Items[saved.reserved:order.ReservedItems])
			return nil, fmt.Errorf("persist order: %w", err)
		}
		s.restock(ctx, log, order.Items[:order.ReservedItems])
		metrics.IncSagaOutcome("compensated")
		log.Warn("order cancelled", zap.String("reason", reason))
	}

	s.deleteCart(ctx, log, cart.ID)
	s.publish(ctx, events.TopicOrderFinalized, events.EventOrderFinalized, order)
	return order, nil
}

// cursor описывает сохранённое положение саги. Запись заказа сагой или восстановлением
// принимается, только если в хранилище лежит тот же курсор.
type cursor struct {
	step     model.SagaStep
	reserved int
}

func cursorOf(o *model.Order) cursor {
	return cursor{step: o.SagaStep, reserved: o.ReservedItems}
}

// reserveAndCharge резервирует товары и списывает деньги.
// Пустая причина означает успех, иначе возвращается причина отмены заказа.
// Ошибка model.ErrConcurrentUpdate означает, что заказом уже распорядились отмена или восстановление.
func (s *OrderService) reserveAndCharge(ctx context.Context, log *zap.Logger, p model.Principal, o *model.Order, saved *cursor) (*model.Transaction, string, error) {
	o.SagaStep = model.SagaStepReserving
	for _, it := range o.Items {
		if err := s.inventory.DecreaseStock(ctx, it.SKU, it.Quantity); err != nil {
			log.Warn("stock decrease failed", zap.String("sku", it.SKU), zap.Int("quantity", it.Quantity), zap.Error(err))
			return nil, failureReason(reasonStockReserve, err), nil
		}
		o.ReservedItems++
		if err := s.checkpoint(ctx, log, o, saved); err != nil {
			return nil, "", err
		}
	}

	wallets, err := s.wallets.ListWallets(ctx, p)
	if err != nil {
		log.Warn("list wallets failed", zap.Error(err))
	}
	if len(wallets) == 0 {
		return nil, reasonNoWallet, nil
	}

	o.SagaStep = model.SagaStepCharging
	if err := s.checkpoint(ctx, log, o, saved); err != nil {
		return nil, "", err
	}

	txn, err := s.wallets.Withdraw(ctx, p, wallets[0].ID, o.TotalAmount, Reference(o.ID))
	if err != nil {
		log.Warn("withdraw failed", zap.Int64("wallet_id", wallets[0].ID), zap.Error(err))
		return nil, failureReason(reasonPaymentFailed, err), nil
	}
	if txn == nil {
		return nil, reasonPaymentFailed, nil
	}
	return txn, "", nil
}

// yield прекращает сагу, когда заказ изменили раньше неё. Резервы из сохранённого курсора
// принадлежат тому, кто изменил заказ, сага возвращает на склад только несохранённые.
func (s *OrderService) yield(ctx context.Context, log *zap.Logger, o *model.Order, saved cursor, cartID int64) (*model.Order, error) {
	s.restock(ctx, log, o.Items[saved.reserved:o.ReservedItems])
	metrics.IncSagaOutcome("superseded")
	log.Warn("order changed concurrently, saga stopped", zap.String("step", string(o.SagaStep)))

	current, err := s.repo.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	s.deleteCart(ctx, log, cartID)
	return current, nil
}

// complete переводит заказ в SHIPPED через PAID и фиксирует успешную оплату.
func (s *OrderService) complete(o *model.Order, txn *model.Transaction) {
	for _, next := range []model.OrderStatus{model.OrderStatusPaid, model.OrderStatusShipped} {
		if err := o.Transition(next); err != nil {
			s.logger.Error("unexpected transition failure", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	txID := txn.ID
	o.Payment = &model.Payment{
		OrderID:       o.ID,
		Amount:        o.TotalAmount,
		Status:        model.PaymentStatusSuccess,
		TransactionID: &txID,
	}
	o.SagaStep = model.SagaStepCompleted
}

// cancel отменяет заказ и помечает оплату неуспешной. Резервы возвращает restock.
func (s *OrderService) cancel(o *model.Order, reason string) {
	if err := o.Transition(model.OrderStatusCancelled); err != nil {
		s.logger.Error("unexpected transition failure", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	if o.Payment == nil {
		o.Payment = &model.Payment{OrderID: o.ID, Amount: o.TotalAmount}
	}
	o.Payment.Status = model.PaymentStatusFailed
	o.SagaStep = model.SagaStepCompensated
	o.FailureReason = reason
}

// restock возвращает позиции на склад. Каждая позиция возвращается один раз; ошибки только логируются.
func (s *OrderService) restock(ctx context.Context, log *zap.Logger, items []model.OrderItem) {
	for _, it := range items {
		if err := s.inventory.IncreaseStock(ctx, it.SKU, it.Quantity); err != nil {
			metrics.IncCompensationFailure()
			log.Error("compensation failed, stock not restored",
				zap.String("sku", it.SKU),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

// persist сохраняет заказ поверх курсора saved и при успехе сдвигает его.
func (s *OrderService) persist(ctx context.Context, o *model.Order, saved *cursor) error {
	if err := s.repo.UpdateOrderCursor(ctx, o, saved.step, saved.reserved); err != nil {
		return err
	}
	*saved = cursorOf(o)
	return nil
}

// checkpoint сохраняет курсор саги. Сбой хранилища не прерывает сагу, а model.ErrConcurrentUpdate прерывает.
func (s *OrderService) checkpoint(ctx context.Context, log *zap.Logger, o *model.Order, saved *cursor) error {
	err := s.persist(ctx, o, saved)
	if err == nil || errors.Is(err, model.ErrConcurrentUpdate) {
		return err
	}
	log.Warn("persist saga checkpoint",
		zap.String("step", string(o.SagaStep)),
		zap.Int("reserved_items", o.ReservedItems),
		zap.Error(err),
	)
	return nil
}

// deleteCart удаляет корзину оформленного заказа. Оставшаяся корзина требует внимания оператора.
func (s *OrderService) deleteCart(ctx context.Context, log *zap.Logger, cartID int64) {
	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		log.Error("cart not deleted after order was finalized", zap.Error(err))
	}
}

func newOrderFromCart(c *model.Cart) *model.Order {
	o := &model.Order{
		UserID:      c.UserID,
		Status:      model.OrderStatusPending,
		TotalAmount: decimal.Zero,
		Items:       make([]model.OrderItem, 0, len(c.Items)),
		SagaStep:    model.SagaStepCreated,
	}
	for _, it := range c.Items {
		item := model.OrderItem{
			SKU:             it.SKU,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.UnitPrice,
		}
		o.Items = append(o.Items, item)
		o.TotalAmount = o.TotalAmount.Add(item.Subtotal())
	}
	return o
}

func failureReason(prefix string, err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientStock):
		return prefix + ": insufficient stock"
	case errors.Is(err, model.ErrInsufficientFunds):
		return prefix + ": insufficient funds"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return prefix + ": upstream unavailable"
	case errors.Is(err, model.ErrNotFound):
		return prefix + ": not found"
	case errors.Is(err, model.ErrForbidden):
		return prefix + ": forbidden"
	default:
		return prefix
	}
}
