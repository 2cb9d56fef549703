package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jcmexdev/payment-saga/internal/payment/domain"
	"github.com/jcmexdev/payment-saga/internal/payment/saga"
)

// fakeLedger is an in-memory domain.Repository enforcing the same natural-key
// uniqueness as the SQLite implementation.
type fakeLedger struct {
	rows map[string]*domain.Payment

	existsErr error
	findErr   error
	saveErr   error
}

var _ domain.Repository = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*domain.Payment)}
}

func ledgerKey(orderID, transactionID string) string {
	return orderID + ":" + transactionID
}

func (f *fakeLedger) Exists(ctx context.Context, orderID, transactionID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.rows[ledgerKey(orderID, transactionID)]
	return ok, nil
}

func (f *fakeLedger) Find(ctx context.Context, orderID, transactionID string) (*domain.Payment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.rows[ledgerKey(orderID, transactionID)]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeLedger) Save(ctx context.Context, p *domain.Payment) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	key := ledgerKey(p.OrderID, p.TransactionID)
	now := time.Now().UTC()
	if p.ID == "" {
		if _, ok := f.rows[key]; ok {
			return domain.ErrDuplicateTransaction
		}
		p.ID = "payment-" + key
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	clone := *p
	f.rows[key] = &clone
	return nil
}

type fakePublisher struct {
	published  []saga.Event
	publishErr error
}

var _ Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(ctx context.Context, event *saga.Event) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, *event)
	return nil
}

func (f *fakePublisher) last(t *testing.T) saga.Event {
	t.Helper()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

func successEvent(unitValue float64, quantity int) *saga.Event {
	return &saga.Event{
		TransactionID: "T1",
		Status:        saga.StatusSuccess,
		Source:        "ORCHESTRATOR",
		Payload: saga.Payload{
			ID: "O1",
			Products: []saga.OrderProduct{
				{Product: saga.Product{Code: "SMARTPHONE", UnitValue: unitValue}, Quantity: quantity},
			},
		},
	}
}

func TestHandleSuccess(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	event := successEvent(5.0, 2)
	if err := h.HandleSuccess(context.Background(), event); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}

	payment, err := ledger.Find(context.Background(), "O1", "T1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if payment.Status != domain.PaymentSuccess {
		t.Errorf("payment status = %q, want SUCCESS", payment.Status)
	}
	if payment.TotalAmount != 10.0 || payment.TotalItems != 2 {
		t.Errorf("payment totals = (%v, %v), want (10, 2)", payment.TotalAmount, payment.TotalItems)
	}

	out := pub.last(t)
	if out.Status != saga.StatusSuccess {
		t.Errorf("event status = %q, want SUCCESS", out.Status)
	}
	if out.Source != SourcePayment {
		t.Errorf("event source = %q, want %q", out.Source, SourcePayment)
	}
	if out.Payload.TotalAmount != 10.0 || out.Payload.TotalItems != 2 {
		t.Errorf("event totals = (%v, %v), want (10, 2)", out.Payload.TotalAmount, out.Payload.TotalItems)
	}
	if len(out.History) != 1 || out.History[0].Message != "Payment success!" {
		t.Errorf("history = %+v, want single 'Payment success!' entry", out.History)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d events, want exactly 1", len(pub.published))
	}
}

func TestHandleSuccessDuplicateDelivery(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("first HandleSuccess: %v", err)
	}
	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("second HandleSuccess: %v", err)
	}

	if len(ledger.rows) != 1 {
		t.Errorf("ledger has %d rows, want 1", len(ledger.rows))
	}
	payment, _ := ledger.Find(context.Background(), "O1", "T1")
	if payment.Status != domain.PaymentSuccess {
		t.Errorf("payment status = %q, want SUCCESS untouched", payment.Status)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.published))
	}
	out := pub.published[1]
	if out.Status != saga.StatusRollbackPending {
		t.Errorf("duplicate outcome status = %q, want ROLLBACK_PENDING", out.Status)
	}
	if len(out.History) != 1 || !strings.Contains(out.History[0].Message, "another transactionId") {
		t.Errorf("duplicate history = %+v, want duplication message", out.History)
	}
}

// A duplicate with an invalid amount is still reported as a duplicate: the
// guard runs before any amount validation.
func TestHandleSuccessDuplicateBeforeValidation(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("first HandleSuccess: %v", err)
	}
	if err := h.HandleSuccess(context.Background(), successEvent(0, 0)); err != nil {
		t.Fatalf("second HandleSuccess: %v", err)
	}

	out := pub.published[1]
	if !strings.Contains(out.History[0].Message, "another transactionId") {
		t.Errorf("history message = %q, want duplication, not amount validation", out.History[0].Message)
	}
}

func TestHandleSuccessMinimumAmountBoundary(t *testing.T) {
	tests := []struct {
		name       string
		unitValue  float64
		quantity   int
		wantStatus saga.Status
	}{
		{"exactly minimum passes", 0.1, 1, saga.StatusSuccess},
		{"just below minimum fails", 0.0999, 1, saga.StatusRollbackPending},
		{"zero amount fails", 0, 1, saga.StatusRollbackPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			pub := &fakePublisher{}
			h := NewPaymentHandler(ledger, pub)

			if err := h.HandleSuccess(context.Background(), successEvent(tt.unitValue, tt.quantity)); err != nil {
				t.Fatalf("HandleSuccess: %v", err)
			}

			out := pub.last(t)
			if out.Status != tt.wantStatus {
				t.Errorf("event status = %q, want %q", out.Status, tt.wantStatus)
			}
			if tt.wantStatus == saga.StatusRollbackPending {
				if !strings.Contains(out.History[0].Message, "minimum amount") {
					t.Errorf("history message = %q, want minimum amount cause", out.History[0].Message)
				}
			}
		})
	}
}

// The exists/insert pair is not atomic; when a concurrent worker wins the
// insert race, the store-level conflict must be treated exactly like the
// pre-check rejection.
func TestHandleSuccessStoreConflictRace(t *testing.T) {
	// Another worker inserted between the exists check and our insert: the
	// row is there, but Exists claims it is not.
	ledger := newFakeLedger()
	if err := ledger.Save(context.Background(), &domain.Payment{
		OrderID: "O1", TransactionID: "T1", Status: domain.PaymentSuccess,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pub := &fakePublisher{}
	h := NewPaymentHandler(&racingLedger{inner: ledger}, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}

	out := pub.last(t)
	if out.Status != saga.StatusRollbackPending {
		t.Errorf("event status = %q, want ROLLBACK_PENDING", out.Status)
	}
	if !strings.Contains(out.History[0].Message, "another transactionId") {
		t.Errorf("history = %q, want duplication cause", out.History[0].Message)
	}
}

// racingLedger reports Exists=false while delegating Save to a ledger that
// already holds the row, simulating the check-then-insert race.
type racingLedger struct {
	inner *fakeLedger
}

func (r *racingLedger) Exists(ctx context.Context, orderID, transactionID string) (bool, error) {
	return false, nil
}

func (r *racingLedger) Find(ctx context.Context, orderID, transactionID string) (*domain.Payment, error) {
	return r.inner.Find(ctx, orderID, transactionID)
}

func (r *racingLedger) Save(ctx context.Context, p *domain.Payment) error {
	return r.inner.Save(ctx, p)
}

func TestHandleSuccessStoreFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.saveErr = domain.ErrLedgerUnavailable
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}

	out := pub.last(t)
	if out.Status != saga.StatusRollbackPending {
		t.Errorf("event status = %q, want ROLLBACK_PENDING", out.Status)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d events, want exactly 1", len(pub.published))
	}
}

func TestHandleSuccessPublishFailureSurfaces(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{publishErr: errors.New("broker down")}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err == nil {
		t.Fatal("HandleSuccess returned nil, want publish error for redelivery")
	}
}

func TestHandleRollbackAfterSuccess(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}

	rollback := &saga.Event{
		TransactionID: "T1",
		Status:        saga.StatusRollbackPending,
		Source:        "ORCHESTRATOR",
		Payload:       saga.Payload{ID: "O1"},
	}
	if err := h.HandleRollback(context.Background(), rollback); err != nil {
		t.Fatalf("HandleRollback: %v", err)
	}

	payment, _ := ledger.Find(context.Background(), "O1", "T1")
	if payment.Status != domain.PaymentRefund {
		t.Errorf("payment status = %q, want REFUND", payment.Status)
	}

	out := pub.last(t)
	if out.Status != saga.StatusFail {
		t.Errorf("event status = %q, want FAIL", out.Status)
	}
	if out.Source != SourcePayment {
		t.Errorf("event source = %q, want %q", out.Source, SourcePayment)
	}
	if len(out.History) != 1 || out.History[0].Message != "Rollback executed!" {
		t.Errorf("history = %+v, want 'Rollback executed!'", out.History)
	}
	// The compensated event carries the stored totals even though the
	// caller's payload had none.
	if out.Payload.TotalAmount != 10.0 || out.Payload.TotalItems != 2 {
		t.Errorf("event totals = (%v, %v), want stored (10, 2)", out.Payload.TotalAmount, out.Payload.TotalItems)
	}
}

func TestHandleRollbackMissingPayment(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	rollback := &saga.Event{
		TransactionID: "T-unseen",
		Payload:       saga.Payload{ID: "O-unseen"},
	}
	if err := h.HandleRollback(context.Background(), rollback); err != nil {
		t.Fatalf("HandleRollback: %v", err)
	}

	out := pub.last(t)
	if out.Status != saga.StatusFail {
		t.Errorf("event status = %q, want FAIL", out.Status)
	}
	if len(out.History) != 1 || !strings.Contains(out.History[0].Message, "Rollback not executed") {
		t.Errorf("history = %+v, want 'Rollback not executed' entry", out.History)
	}
}

// A second rollback for the same key re-persists REFUND and appends another
// entry. Idempotent by accident, and kept that way.
func TestHandleRollbackTwice(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	if err := h.HandleSuccess(context.Background(), successEvent(5.0, 2)); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}

	for i := 0; i < 2; i++ {
		rollback := &saga.Event{TransactionID: "T1", Payload: saga.Payload{ID: "O1"}}
		if err := h.HandleRollback(context.Background(), rollback); err != nil {
			t.Fatalf("HandleRollback #%d: %v", i+1, err)
		}
		out := pub.last(t)
		if out.History[len(out.History)-1].Message != "Rollback executed!" {
			t.Errorf("rollback #%d history = %+v", i+1, out.History)
		}
	}

	payment, _ := ledger.Find(context.Background(), "O1", "T1")
	if payment.Status != domain.PaymentRefund {
		t.Errorf("payment status = %q, want REFUND", payment.Status)
	}
}

func TestHistoryGrowsByOnePerInvocation(t *testing.T) {
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	h := NewPaymentHandler(ledger, pub)

	event := successEvent(5.0, 2)

	if err := h.HandleSuccess(context.Background(), event); err != nil {
		t.Fatalf("HandleSuccess: %v", err)
	}
	if len(event.History) != 1 {
		t.Fatalf("history length after success = %d, want 1", len(event.History))
	}
	firstEntry := event.History[0]

	if err := h.HandleSuccess(context.Background(), event); err != nil {
		t.Fatalf("duplicate HandleSuccess: %v", err)
	}
	if len(event.History) != 2 {
		t.Fatalf("history length after duplicate = %d, want 2", len(event.History))
	}

	if err := h.HandleRollback(context.Background(), event); err != nil {
		t.Fatalf("HandleRollback: %v", err)
	}
	if len(event.History) != 3 {
		t.Fatalf("history length after rollback = %d, want 3", len(event.History))
	}

	if event.History[0] != firstEntry {
		t.Errorf("first entry not preserved verbatim: %+v vs %+v", event.History[0], firstEntry)
	}
}
