package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/events"
	"github.com/mmeshcher/checkout-saga/internal/metrics"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

const (
	recoveryBatchSize = 100
	reasonAbandoned   = "checkout abandoned before completion"
)

// StartRecovery запускает фоновый процесс, который завершает зависшие саги.
// Заказ считается зависшим, если его курсор не менялся дольше pendingTimeout.
func (s *OrderService) StartRecovery(ctx context.Context, interval, pendingTimeout time.Duration) {
	if interval <= 0 || pendingTimeout <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.recoverStaleOrders(ctx, time.Now().Add(-pendingTimeout))
			}
		}
	}()
}

// recoverStaleOrders компенсирует заказы, курсор которых не менялся с момента before, и возвращает их число.
// Заказ сначала отменяется условной записью поверх прочитанного курсора и только потом
// возвращаются резервы, поэтому продолжающая работу сага и восстановление не вернут товар дважды.
// Заказы на шаге CHARGING не трогаются: без токена пользователя нельзя узнать, прошло ли списание.
func (s *OrderService) recoverStaleOrders(ctx context.Context, before time.Time) int {
	orders, err := s.repo.ListStalePendingOrders(ctx, before, recoveryBatchSize)
	if err != nil {
		s.logger.Warn("list stale orders", zap.Error(err))
		return 0
	}

	recovered := 0
	for i := range orders {
		if ctx.Err() != nil {
			return recovered
		}

		o := &orders[i]
		log := s.logger.With(zap.Int64("order_id", o.ID), zap.String("step", string(o.SagaStep)))

		switch o.SagaStep {
		case model.SagaStepCreated, model.SagaStepReserving:
		case model.SagaStepCharging:
			log.Error("stale order stuck in charging, requires manual reconciliation")
			continue
		default:
			log.Warn("stale pending order with finished saga step")
			continue
		}

		prev := cursorOf(o)
		reserved := min(o.ReservedItems, len(o.Items))
		s.cancel(o, reasonAbandoned)
		if err := s.repo.UpdateOrderCursor(ctx, o, prev.step, prev.reserved); err != nil {
			if errors.Is(err, model.ErrConcurrentUpdate) {
				log.Info("stale order changed concurrently, skipped")
				continue
			}
			log.Warn("persist recovered order", zap.Error(err))
			continue
		}
		o.ReservedItems = reserved
		s.restock(ctx, log, o.Items[:reserved])

		recovered++
		metrics.IncSagaOutcome("recovered")
		log.Info("stale order compensated", zap.Int("restored_items", o.ReservedItems))
		s.publish(ctx, events.TopicOrderFinalized, events.EventOrderFinalized, o)
	}
	return recovered
}
