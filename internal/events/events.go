// Package events публикует доменные события магазина.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий.
const (
	EventOrderFinalized = "OrderFinalized"
	EventOrderCancelled = "OrderCancelled"
)

// Топики.
const (
	TopicOrderFinalized = "order.finalized"
	TopicOrderCancelled = "order.cancelled"
)

// Envelope описывает общую оболочку события.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderFinalizedPayload описывает итог саги оформления заказа.
type OrderFinalizedPayload struct {
	OrderID       int64  `json:"order_id"`
	UserID        int64  `json:"user_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	TotalAmount   string `json:"total_amount"`
	Reason        string `json:"reason,omitempty"`
}

// NewEnvelope упаковывает payload в Envelope с новым идентификатором события.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Publisher отправляет событие в топик. Ключ определяет партицию.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, env Envelope) error
	Close() error
}

// Nop реализует Publisher, который ничего не отправляет.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, Envelope) error { return nil }
func (Nop) Close() error                                           { return nil }
