package saga

// Status is the saga-wide outcome as last set by any participant.
//
// It is a deliberately separate type from domain.PaymentStatus: both
// vocabularies contain "PENDING" and "SUCCESS", but they describe different
// state machines and share no transitions.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"

	// StatusRollbackPending signals that this participant's local step failed
	// and the saga must start compensating the steps already completed.
	StatusRollbackPending Status = "ROLLBACK_PENDING"
)
