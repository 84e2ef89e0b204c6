package roundup

import "errors"

var (
	// ErrInvalidAmount is returned for negative spend amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAssistedDecisionUnavailable covers every advisor failure: timeout,
	// transport error, malformed output. The engine recovers from it locally.
	ErrAssistedDecisionUnavailable = errors.New("assisted decision unavailable")

	// ErrDecisionOutOfContract is returned by ValidateDecision.
	ErrDecisionOutOfContract = errors.New("decision out of contract")
)
