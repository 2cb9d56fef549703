package kafkax

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jcmexdev/payment-saga/internal/payment/saga"
)

// consume is tested directly so no broker is needed; Run only adds the
// fetch/commit loop around it.

func testConsumer(handle EventHandler) *Consumer {
	return &Consumer{topic: "payment-success", handle: handle, timeout: time.Second}
}

func TestConsumeDispatchesDecodedEvent(t *testing.T) {
	var got *saga.Event
	c := testConsumer(func(ctx context.Context, event *saga.Event) error {
		got = event
		return nil
	})

	raw := []byte(`{"transactionId":"T1","status":"SUCCESS","payload":{"id":"O1","products":[]}}`)
	if commit := c.consume(context.Background(), raw); !commit {
		t.Error("consume = false, want commit after successful handling")
	}
	if got == nil {
		t.Fatal("handler was not invoked")
	}
	if got.TransactionID != "T1" || got.Payload.ID != "O1" {
		t.Errorf("handler received %+v, want T1/O1", got)
	}
}

func TestConsumeDiscardsPoisonMessage(t *testing.T) {
	invoked := false
	c := testConsumer(func(ctx context.Context, event *saga.Event) error {
		invoked = true
		return nil
	})

	if commit := c.consume(context.Background(), []byte("not json")); !commit {
		t.Error("consume = false for poison message, want commit (discard)")
	}
	if invoked {
		t.Error("handler invoked for undecodable payload")
	}
}

func TestConsumeLeavesFailedMessageUncommitted(t *testing.T) {
	c := testConsumer(func(ctx context.Context, event *saga.Event) error {
		return errors.New("publish failed")
	})

	raw := []byte(`{"transactionId":"T1","payload":{"id":"O1"}}`)
	if commit := c.consume(context.Background(), raw); commit {
		t.Error("consume = true after handler error, want redelivery")
	}
}

func TestConsumeBoundsHandlerDeadline(t *testing.T) {
	c := testConsumer(func(ctx context.Context, event *saga.Event) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("handler context has no deadline")
		} else if remaining := time.Until(deadline); remaining > time.Second {
			t.Errorf("deadline too far out: %v", remaining)
		}
		return nil
	})

	c.consume(context.Background(), []byte(`{"transactionId":"T1","payload":{"id":"O1"}}`))
}
