package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/payment-saga/internal/payment/saga"
)

const tracerName = "payment-service/kafkax"

// fetchBackoff is how long the loop waits after a broker fetch error before
// trying again.
const fetchBackoff = 500 * time.Millisecond

// EventHandler processes one decoded saga event. A returned error means the
// outcome was not durably communicated and the message must be redelivered.
type EventHandler func(ctx context.Context, event *saga.Event) error

// Consumer binds one inbound topic to one handler. The binding table
// {topic → handler} is built in main from configuration; the handler itself
// is channel-agnostic.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	handle  EventHandler
	timeout time.Duration
}

// NewConsumer creates a consumer-group reader for the topic. timeout bounds
// one handler invocation (store plus publish I/O).
func NewConsumer(brokers []string, topic, groupID string, timeout time.Duration, handle EventHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		topic:   topic,
		handle:  handle,
		timeout: timeout,
	}
}

// Run fetches, handles and commits messages until ctx is cancelled.
//
// The offset is committed only after the handler has produced and attempted
// to publish its outcome — a crash mid-processing leaves the message
// uncommitted and at-least-once redelivery is the recovery path.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			slog.ErrorContext(ctx, "fetch failed", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		if c.consume(ctx, msg.Value) {
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "commit failed", "topic", c.topic, "error", err)
			}
		}
	}
}

// Close releases the group membership. Call it with defer in main().
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// consume decodes and dispatches one message, reporting whether its offset
// should be committed.
func (c *Consumer) consume(ctx context.Context, value []byte) bool {
	slog.InfoContext(ctx, "received event", "topic", c.topic, "payload", string(value))

	event, err := saga.Decode(value)
	if err != nil {
		// Poison message: redelivery cannot fix a malformed payload.
		slog.ErrorContext(ctx, "discarding undecodable event", "topic", c.topic, "error", err)
		return true
	}

	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hctx, span := otel.Tracer(tracerName).Start(hctx, "saga.consume "+c.topic)
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.transaction_id", event.TransactionID),
		attribute.String("saga.order_id", event.Payload.ID),
	)

	if err := c.handle(hctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event handling failed")
		slog.ErrorContext(hctx, "event handling failed, message will be redelivered",
			"topic", c.topic,
			"transaction_id", event.TransactionID,
			"error", err,
		)
		return false
	}

	return true
}
