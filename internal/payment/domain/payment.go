// Package domain holds the payment ledger entity, its status machine and the
// persistence port the rest of the service depends on.
package domain

import "time"

// PaymentStatus is the local lifecycle of a ledger row:
//
//	∅ → PENDING → SUCCESS
//	PENDING|SUCCESS → REFUND (compensation only)
//
// Terminal rows are never deleted; the table is an immutable audit trail.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentRefund  PaymentStatus = "REFUND"
)

// Payment is one durable charge record. (OrderID, TransactionID) is the
// natural key — the store enforces it as UNIQUE, which is what makes duplicate
// Kafka deliveries detectable.
type Payment struct {
	ID            string
	OrderID       string
	TransactionID string
	Status        PaymentStatus
	TotalAmount   float64
	TotalItems    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
