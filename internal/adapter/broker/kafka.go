package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-intake-gateway/config"
	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EventTypeOrderAdmitted is published once per admitted order.
const EventTypeOrderAdmitted = "order.admitted"

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderAdmittedEvent is the message value on the orders topic.
type OrderAdmittedEvent struct {
	EventID    uuid.UUID     `json:"event_id"`
	EventType  string        `json:"event_type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Order      *domain.Order `json:"order"`
}

// Publisher implements ports.EventPublisher on Kafka.
type Publisher struct {
	writer MessageWriter
	log    zerolog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka writer for the configured topic.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// NewPublisher wraps a message writer.
func NewPublisher(w MessageWriter, log zerolog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		log:    log.With().Str("component", "publisher").Logger(),
		now:    time.Now,
	}
}

// PublishOrderAdmitted publishes the order keyed by tenant, so one tenant's
// orders keep their relative order on a partition.
func (p *Publisher) PublishOrderAdmitted(ctx context.Context, order *domain.Order) error {
	event := OrderAdmittedEvent{
		EventID:    uuid.New(),
		EventType:  EventTypeOrderAdmitted,
		OccurredAt: p.now().UTC(),
		Order:      order,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", EventTypeOrderAdmitted, err)
	}

	msg := kafka.Message{
		Key:   []byte(order.TenantID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeOrderAdmitted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}

	p.log.Debug().
		Str("event_id", event.EventID.String()).
		Str("order_id", order.ID.String()).
		Msg("order.admitted published")
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
