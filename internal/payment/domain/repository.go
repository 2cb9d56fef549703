package domain

import "context"

// Repository is the port (interface) for the payment ledger. The handler
// depends on this abstraction, not on SQLite directly, so the implementation
// can be swapped for Postgres, in-memory (tests), or wrapped with a cache.
type Repository interface {
	// Exists reports whether a payment row exists for the exact pair.
	// Safe to call concurrently with Save.
	Exists(ctx context.Context, orderID, transactionID string) (bool, error)

	// Find returns the payment for the pair, or ErrPaymentNotFound.
	Find(ctx context.Context, orderID, transactionID string) (*Payment, error)

	// Save upserts a payment. Inserts assign ID plus CreatedAt/UpdatedAt;
	// updates touch UpdatedAt only — CreatedAt is immutable after first write.
	// An insert that conflicts on the natural key fails with
	// ErrDuplicateTransaction.
	Save(ctx context.Context, p *Payment) error
}
