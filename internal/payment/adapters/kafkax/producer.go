// Package kafkax adapts the participant to its Kafka transport: a keyed
// producer for the orchestrator topic and one consumer per inbound topic.
package kafkax

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jcmexdev/payment-saga/internal/payment/app"
	"github.com/jcmexdev/payment-saga/internal/payment/saga"
)

// Producer publishes mutated saga events to the orchestrator topic.
type Producer struct {
	writer *kafka.Writer
}

var _ app.Publisher = (*Producer)(nil)

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			// The outbound event is the only record of the outcome: wait for
			// all in-sync replicas before acknowledging.
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish encodes the event and writes it keyed by order ID, so every event
// of one saga lands on the same partition and keeps its per-key ordering.
func (p *Producer) Publish(ctx context.Context, event *saga.Event) error {
	value, err := event.Encode()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Payload.ID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkax: publish event for order %q: %w", event.Payload.ID, err)
	}
	return nil
}

// Close flushes pending batches. Call it with defer in main().
func (p *Producer) Close() error {
	return p.writer.Close()
}
