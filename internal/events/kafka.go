package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher отправляет события в Kafka синхронно с идентификатором заказа в качестве ключа.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher создаёт Publisher для указанных брокеров. Топик задаётся в каждом сообщении.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// Publish сериализует Envelope и записывает его в topic.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to %s: %w", topic, err)
	}
	return nil
}

// Close сбрасывает буферы и закрывает соединения.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
