package domain

import "time"

// EventType names a change on the savings history feed.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
)

// TransactionEvent is published whenever a Transaction row is inserted or its
// status changes.
type TransactionEvent struct {
	Type        EventType   `json:"type"`
	Transaction Transaction `json:"transaction"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
