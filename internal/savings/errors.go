package savings

import "errors"

var (
	// ErrPersistence means the decision was computed but could not be stored.
	ErrPersistence = errors.New("failed to persist transaction")
	// ErrTransfer means the money movement was rejected. The record is
	// marked failed and the decision stays auditable.
	ErrTransfer = errors.New("transfer failed")
	// ErrInsufficientBalance rejects a withdrawal above the available balance.
	ErrInsufficientBalance = errors.New("insufficient savings balance")
	// ErrInvalidRequest rejects malformed input.
	ErrInvalidRequest = errors.New("invalid request")
)
