// Package sqlite provides the SQLite-backed implementation of
// domain.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — the consumer goroutines write while the HTTP status endpoint reads.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jcmexdev/payment-saga/internal/payment/domain"

	// Pure-Go SQLite driver — no CGO, easy to build in Docker (Alpine).
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// schema is the DDL executed once on startup.
//
// The UNIQUE(order_id, transaction_id) index is load-bearing: it is the
// idempotency anchor. Two workers racing the same redelivered event both pass
// the application-level exists check, but only one insert wins; the loser is
// mapped to domain.ErrDuplicateTransaction.
const schema = `
CREATE TABLE IF NOT EXISTS payments (
    -- Surrogate key, a UUID assigned on insert.
    id              TEXT PRIMARY KEY,

    -- Natural key of the participant: one payment per saga attempt per order.
    order_id        TEXT    NOT NULL,
    transaction_id  TEXT    NOT NULL,

    -- Local lifecycle: PENDING, SUCCESS or REFUND.
    status          TEXT    NOT NULL,

    -- Aggregates computed once at creation from the event payload.
    total_amount    REAL    NOT NULL,
    total_items     INTEGER NOT NULL,

    -- Wall-clock timestamps (RFC3339 stored as TEXT, SQLite idiom).
    -- created_at is immutable after the first write.
    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL,

    UNIQUE(order_id, transaction_id)
);
`

// Repository is the SQLite implementation of domain.Repository.
type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	repo, err := sqlite.Open("./data/payment.db")
func Open(path string) (*Repository, error) {
	// WAL enables concurrent readers. busy_timeout waits for locks instead of
	// failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Exists reports whether a payment row exists for the pair.
func (r *Repository) Exists(ctx context.Context, orderID, transactionID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = ? AND transaction_id = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, orderID, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("sqlite: exists check for order %q: %w: %v", orderID, domain.ErrLedgerUnavailable, err)
	}
	return exists, nil
}

// Find returns the payment for the pair, or domain.ErrPaymentNotFound.
func (r *Repository) Find(ctx context.Context, orderID, transactionID string) (*domain.Payment, error) {
	const q = `
		SELECT id, order_id, transaction_id, status, total_amount, total_items, created_at, updated_at
		FROM   payments
		WHERE  order_id = ? AND transaction_id = ?`

	row := r.db.QueryRowContext(ctx, q, orderID, transactionID)

	var p domain.Payment
	var status, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.OrderID, &p.TransactionID, &status, &p.TotalAmount, &p.TotalItems, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find payment for order %q: %w: %v", orderID, domain.ErrLedgerUnavailable, err)
	}

	p.Status = domain.PaymentStatus(status)
	if p.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}

// Save upserts a payment. A payment without an ID is a new row: it gets a
// UUID and both timestamps. A payment with an ID is updated in place; only
// updated_at is touched.
func (r *Repository) Save(ctx context.Context, p *domain.Payment) error {
	now := time.Now().UTC()

	if p.ID == "" {
		p.ID = uuid.NewString()
		p.CreatedAt = now
		p.UpdatedAt = now

		const q = `
			INSERT INTO payments (id, order_id, transaction_id, status, total_amount, total_items, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

		_, err := r.db.ExecContext(ctx, q,
			p.ID, p.OrderID, p.TransactionID, string(p.Status),
			p.TotalAmount, p.TotalItems,
			formatRFC3339(p.CreatedAt), formatRFC3339(p.UpdatedAt),
		)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTransaction
		}
		if err != nil {
			return fmt.Errorf("sqlite: insert payment for order %q: %w: %v", p.OrderID, domain.ErrLedgerUnavailable, err)
		}
		return nil
	}

	p.UpdatedAt = now

	const q = `
		UPDATE payments
		SET    status = ?, total_amount = ?, total_items = ?, updated_at = ?
		WHERE  id = ?`

	if _, err := r.db.ExecContext(ctx, q,
		string(p.Status), p.TotalAmount, p.TotalItems, formatRFC3339(p.UpdatedAt), p.ID,
	); err != nil {
		return fmt.Errorf("sqlite: update payment %q: %w: %v", p.ID, domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// isUniqueViolation reports whether err is the driver's unique-constraint
// error on the natural key.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
