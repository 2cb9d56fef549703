package domain

import "errors"

// The error set the handler classifies on. All of these are expected business
// outcomes under at-least-once delivery, not defects; their texts end up in
// the event history so they must read well to a human.
var (
	// ErrDuplicateTransaction means this (orderId, transactionId) pair was
	// already processed. Raised by the pre-check and by the store when a
	// concurrent insert loses the race against the unique index.
	ErrDuplicateTransaction = errors.New("there's another transactionId for this validation")

	// ErrPaymentNotFound is expected during rollback when the forward path
	// never completed for this key.
	ErrPaymentNotFound = errors.New("payment not found by orderId and transactionId")

	// ErrInvalidAmount rejects charges below the minimum chargeable amount.
	ErrInvalidAmount = errors.New("the minimum amount available is 0.1")

	// ErrLedgerUnavailable wraps storage/transport failures of the ledger.
	ErrLedgerUnavailable = errors.New("payment ledger unavailable")
)
