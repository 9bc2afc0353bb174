// Package events publishes order lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypeOrderPaid = "order.paid"

// OrderPaid is emitted once an order moves from pending to paid.
type OrderPaid struct {
	Type         string    `json:"type"`
	OrderID      string    `json:"orderId"`
	Reference    string    `json:"reference"`
	Email        string    `json:"email,omitempty"`
	TotalCents   int64     `json:"totalCents"`
	Currency     string    `json:"currency"`
	DiscountCode string    `json:"discountCode,omitempty"`
	FileIDs      []string  `json:"fileIds,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish writes event as JSON keyed by key, so events for one order stay on
// one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  p.now(),
	}); err != nil {
		return fmt.Errorf("publish event key=%s: %w", key, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
