// Package events publishes work lifecycle events to Kafka so downstream
// consumers (webhooks, analytics) can react without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/aaj441/aaronos-core/internal/domain"
)

// Topic carries every work lifecycle event, keyed by work ID.
const Topic = "work.lifecycle"

// WorkEvent is the message published at every terminal transition.
type WorkEvent struct {
	WorkID     string            `json:"work_id"`
	Kind       domain.WorkKind   `json:"kind"`
	OwnerID    string            `json:"owner_id"`
	Status     domain.WorkStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher emits work lifecycle events.
type Publisher interface {
	PublishWorkEvent(ctx context.Context, ev WorkEvent) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a Publisher connected to the given brokers.
func NewKafkaPublisher(brokers []string) Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // route by key → per-work ordering
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &kafkaPublisher{writer: w}
}

func (p *kafkaPublisher) PublishWorkEvent(ctx context.Context, ev WorkEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal work event: %w", err)
	}

	// Inject the active trace context into message headers so downstream
	// consumers can extract and continue the trace.
	headers := make(HeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   Topic,
		Key:     []byte(ev.WorkID),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", Topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishWorkEvent(context.Context, WorkEvent) error { return nil }
func (NopPublisher) Close() error                                      { return nil }
