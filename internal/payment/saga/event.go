// Package saga defines the event envelope shared by every participant of the
// order saga. The envelope travels as JSON on the bus; each participant
// mutates status/source/payload, appends exactly one history entry per
// decision, and re-publishes it to the orchestrator topic.
package saga

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the saga envelope. TransactionID identifies one saga attempt and,
// combined with the order ID inside Payload, forms the idempotency key for
// this participant.
type Event struct {
	TransactionID string    `json:"transactionId"`
	Status        Status    `json:"status"`
	Source        string    `json:"source"`
	Payload       Payload   `json:"payload"`
	History       []History `json:"history"`
}

// Payload carries the order being processed. TotalAmount and TotalItems are
// written by the payment participant from its own computation — downstream
// participants must never trust client-supplied totals.
type Payload struct {
	ID          string         `json:"id"`
	Products    []OrderProduct `json:"products"`
	TotalAmount float64        `json:"totalAmount"`
	TotalItems  int            `json:"totalItems"`
}

type OrderProduct struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type Product struct {
	Code      string  `json:"code"`
	UnitValue float64 `json:"unitValue"`
}

// History is one entry of the append-only audit trail embedded in the event.
// Entries are never reordered or truncated.
type History struct {
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Amount sums quantity × unit value over all products.
// An empty product list yields 0.
func (p Payload) Amount() float64 {
	var total float64
	for _, op := range p.Products {
		total += float64(op.Quantity) * op.Product.UnitValue
	}
	return total
}

// Count sums the quantities over all products.
func (p Payload) Count() int {
	var total int
	for _, op := range p.Products {
		total += op.Quantity
	}
	return total
}

// AddHistory appends one entry stamped with the event's current source and
// status. Callers set Status and Source first, then record the decision.
func (e *Event) AddHistory(message string, at time.Time) {
	e.History = append(e.History, History{
		Source:    e.Source,
		Status:    e.Status,
		Message:   message,
		CreatedAt: at,
	})
}

// Encode serialises the event for the bus.
func (e *Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("saga: encode event %q: %w", e.TransactionID, err)
	}
	return raw, nil
}

// Decode parses a raw bus message into an Event.
func Decode(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("saga: decode event: %w", err)
	}
	return &e, nil
}
