// Package app contains the payment participant's state machine: it validates
// incoming saga events, moves the local ledger through its lifecycle and
// reports the outcome to the orchestrator.
//
// The handler is pure business logic over its two injected dependencies
// (ledger, publisher). It never talks to Kafka or HTTP directly.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/payment-saga/internal/payment/domain"
	"github.com/jcmexdev/payment-saga/internal/payment/saga"
)

// SourcePayment identifies this participant in event.source and history entries.
const SourcePayment = "PAYMENT_SERVICE"

// minimumAmount is the smallest chargeable total. Exactly 0.1 passes.
const minimumAmount = 0.1

// Publisher is the port for handing the mutated event back to the saga.
type Publisher interface {
	Publish(ctx context.Context, event *saga.Event) error
}

// PaymentHandler processes the two inbound channels of this participant:
// the success notification (charge the order) and the fail notification
// (compensate a previous charge).
type PaymentHandler struct {
	ledger    domain.Repository
	publisher Publisher
}

func NewPaymentHandler(ledger domain.Repository, publisher Publisher) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, publisher: publisher}
}

// HandleSuccess charges the order described by the event, exactly once per
// (orderId, transactionId) pair. Whatever the local outcome, the event is
// published exactly once: the orchestrator must learn about rejections too,
// so the saga can compensate elsewhere.
//
// A returned error means the outcome could not be published — the caller must
// leave the inbound message unacknowledged so the transport redelivers it.
func (h *PaymentHandler) HandleSuccess(ctx context.Context, event *saga.Event) error {
	if err := h.realizePayment(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to realize payment",
			"order_id", event.Payload.ID,
			"transaction_id", event.TransactionID,
			"error", err,
		)
		event.Status = saga.StatusRollbackPending
		event.Source = SourcePayment
		event.AddHistory("Failed to realize payment: "+err.Error(), time.Now().UTC())
	} else {
		event.Status = saga.StatusSuccess
		event.Source = SourcePayment
		event.AddHistory("Payment success!", time.Now().UTC())
	}

	return h.publisher.Publish(ctx, event)
}

// HandleRollback compensates a charge after the saga failed downstream.
// Status FAIL and the source are recorded before the refund is attempted:
// they reflect the saga's ground truth regardless of the local outcome.
// A missing payment is an expected race (the forward path never ran here),
// recorded in history without aborting.
func (h *PaymentHandler) HandleRollback(ctx context.Context, event *saga.Event) error {
	event.Status = saga.StatusFail
	event.Source = SourcePayment

	if err := h.refundPayment(ctx, event); err != nil {
		slog.ErrorContext(ctx, "rollback not executed",
			"order_id", event.Payload.ID,
			"transaction_id", event.TransactionID,
			"error", err,
		)
		event.AddHistory("Rollback not executed for payment: "+err.Error(), time.Now().UTC())
	} else {
		event.AddHistory("Rollback executed!", time.Now().UTC())
	}

	return h.publisher.Publish(ctx, event)
}

// realizePayment runs the success-path steps in order. The duplicate guard
// runs before any amount validation, so a redelivered event with a bad amount
// is reported as a duplicate, not as an invalid amount.
func (h *PaymentHandler) realizePayment(ctx context.Context, event *saga.Event) error {
	if err := h.checkNotProcessed(ctx, event); err != nil {
		return err
	}
	if err := h.createPendingPayment(ctx, event); err != nil {
		return err
	}

	// Re-fetch through the port so validation runs on what was actually
	// persisted, not on the in-memory object.
	payment, err := h.ledger.Find(ctx, event.Payload.ID, event.TransactionID)
	if err != nil {
		return err
	}
	if payment.TotalAmount < minimumAmount {
		return domain.ErrInvalidAmount
	}

	payment.Status = domain.PaymentSuccess
	return h.ledger.Save(ctx, payment)
}

// checkNotProcessed is the idempotency guard against duplicate Kafka
// deliveries. The check-then-insert pair is not atomic; the store's unique
// index covers the race and surfaces the same ErrDuplicateTransaction.
func (h *PaymentHandler) checkNotProcessed(ctx context.Context, event *saga.Event) error {
	exists, err := h.ledger.Exists(ctx, event.Payload.ID, event.TransactionID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateTransaction
	}
	return nil
}

// createPendingPayment computes the authoritative totals from the payload,
// persists the PENDING row and writes the totals back into the event so
// downstream participants see the computed values.
func (h *PaymentHandler) createPendingPayment(ctx context.Context, event *saga.Event) error {
	payment := &domain.Payment{
		OrderID:       event.Payload.ID,
		TransactionID: event.TransactionID,
		Status:        domain.PaymentPending,
		TotalAmount:   event.Payload.Amount(),
		TotalItems:    event.Payload.Count(),
	}
	if err := h.ledger.Save(ctx, payment); err != nil {
		return err
	}

	setEventTotals(event, payment)
	return nil
}

func (h *PaymentHandler) refundPayment(ctx context.Context, event *saga.Event) error {
	payment, err := h.ledger.Find(ctx, event.Payload.ID, event.TransactionID)
	if err != nil {
		return err
	}

	payment.Status = domain.PaymentRefund
	// The compensated event carries the stored totals even if the caller's
	// payload diverged.
	setEventTotals(event, payment)

	return h.ledger.Save(ctx, payment)
}

func setEventTotals(event *saga.Event, payment *domain.Payment) {
	event.Payload.TotalAmount = payment.TotalAmount
	event.Payload.TotalItems = payment.TotalItems
}
