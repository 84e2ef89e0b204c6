package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the service moves money in.
const Currency = "KES"

// Status is the lifecycle state of a savings Transaction.
type Status string

const (
	// StatusPending marks a record whose money movement has not been confirmed yet.
	StatusPending Status = "pending"
	// StatusCompleted marks a confirmed (or simulated) record.
	StatusCompleted Status = "completed"
	// StatusFailed marks a record whose transfer was rejected.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Kind distinguishes roundup deposits from withdrawals.
type Kind string

const (
	KindRoundup    Kind = "roundup"
	KindWithdrawal Kind = "withdrawal"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("transaction not found")
)

// Transaction is one immutable entry of a user's savings history.
// AmountSaved is positive for a roundup deposit and negative for a withdrawal.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	Kind        Kind            `json:"kind"`
	AmountSpent decimal.Decimal `json:"amount_spent"`
	RoundedTo   decimal.Decimal `json:"rounded_to"`
	AmountSaved decimal.Decimal `json:"amount_saved"`
	Rationale   string          `json:"rationale"`
	Source      DecisionSource  `json:"source,omitempty"`
	Status      Status          `json:"status"`
	Reference   string          `json:"reference,omitempty"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewRoundup builds the record for a roundup decision. The record starts as
// pending unless it needs no money movement (simulated, or nothing saved).
func NewRoundup(id, userID, phone string, amount decimal.Decimal, d RoundupDecision, simulated bool, at time.Time) Transaction {
	status := StatusPending
	if simulated || !d.Saved.IsPositive() {
		status = StatusCompleted
	}
	return Transaction{
		ID:          id,
		UserID:      userID,
		PhoneNumber: phone,
		Kind:        KindRoundup,
		AmountSpent: amount,
		RoundedTo:   d.RoundTo,
		AmountSaved: d.Saved,
		Rationale:   d.Reason,
		Source:      d.Source,
		Status:      status,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// NewWithdrawal builds a pending withdrawal of amount (a positive value).
func NewWithdrawal(id, userID, phone string, amount decimal.Decimal, reason string, at time.Time) Transaction {
	if reason == "" {
		reason = "Withdrawal"
	}
	return Transaction{
		ID:          id,
		UserID:      userID,
		PhoneNumber: phone,
		Kind:        KindWithdrawal,
		AmountSpent: decimal.Zero,
		RoundedTo:   decimal.Zero,
		AmountSaved: amount.Neg(),
		Rationale:   reason,
		Status:      StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Transition returns a copy of t moved to status to. Only pending records can
// move, and only to a terminal state.
func (t Transaction) Transition(to Status, at time.Time) (Transaction, error) {
	if t.Status != StatusPending || !to.Terminal() {
		return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = at
	return t, nil
}

// WithReference returns a copy of t carrying the provider reference.
func (t Transaction) WithReference(ref string, at time.Time) Transaction {
	t.Reference = ref
	t.UpdatedAt = at
	return t
}

// WithCheckout returns a copy of t carrying the page where the payer
// authorises a pending charge.
func (t Transaction) WithCheckout(url string) Transaction {
	t.CheckoutURL = url
	return t
}

// Validate checks the amount invariants of the record.
func (t Transaction) Validate() error {
	if t.AmountSpent.IsNegative() {
		return fmt.Errorf("amount_spent must not be negative, got %s", t.AmountSpent)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.AmountSpent.IsPositive() {
		if t.RoundedTo.LessThan(t.AmountSpent) {
			return fmt.Errorf("rounded_to %s below amount_spent %s", t.RoundedTo, t.AmountSpent)
		}
		if !t.RoundedTo.Equal(t.AmountSpent.Add(t.AmountSaved)) {
			return fmt.Errorf("rounded_to %s != amount_spent %s + amount_saved %s", t.RoundedTo, t.AmountSpent, t.AmountSaved)
		}
	}
	return nil
}

// Countable reports whether the record contributes to the spending profile.
// Failed records never moved money.
func (t Transaction) Countable() bool {
	return t.Status != StatusFailed
}
