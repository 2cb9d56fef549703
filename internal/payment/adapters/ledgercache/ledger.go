// Package ledgercache layers the shared Redis cache in front of the ledger's
// existence check, the hottest query under retry storms: every redelivered
// event runs the duplicate guard before touching anything else.
//
// The cache is an optimisation only. Authority over uniqueness stays with the
// store's unique index, and cache failures fall through to the store.
package ledgercache

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/payment-saga/internal/payment/domain"
	"github.com/jcmexdev/payment-saga/internal/pkg/cache"
)

const existsOp = "exists"

// Ledger decorates a domain.Repository. Find and Save pass through; Exists
// consults the cache first. Only positive answers are cached — a payment row
// is never deleted, so a cached "exists" can never go stale.
type Ledger struct {
	domain.Repository
	cache cache.Cache
	ttl   time.Duration
}

var _ domain.Repository = (*Ledger)(nil)

func Wrap(repo domain.Repository, c cache.Cache, ttl time.Duration) *Ledger {
	return &Ledger{Repository: repo, cache: c, ttl: ttl}
}

func (l *Ledger) Exists(ctx context.Context, orderID, transactionID string) (bool, error) {
	key := l.key(orderID, transactionID)

	if value, err := l.cache.Get(ctx, key); err == nil && value == "1" {
		return true, nil
	} else if err != nil {
		slog.WarnContext(ctx, "existence cache read failed", "key", key, "error", err)
	}

	exists, err := l.Repository.Exists(ctx, orderID, transactionID)
	if err != nil {
		return false, err
	}
	if exists {
		l.prime(ctx, key)
	}
	return exists, nil
}

// Save persists through the store and primes the cache, so the guard for the
// next duplicate delivery of the same pair is answered without a store read.
func (l *Ledger) Save(ctx context.Context, p *domain.Payment) error {
	if err := l.Repository.Save(ctx, p); err != nil {
		return err
	}
	l.prime(ctx, l.key(p.OrderID, p.TransactionID))
	return nil
}

func (l *Ledger) key(orderID, transactionID string) string {
	return l.cache.GenerateKey(existsOp, orderID+":"+transactionID)
}

func (l *Ledger) prime(ctx context.Context, key string) {
	if err := l.cache.Set(ctx, key, "1", l.ttl); err != nil {
		slog.WarnContext(ctx, "existence cache write failed", "key", key, "error", err)
	}
}
