package savings

import (
	"context"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

// Store persists savings history. Implementations return domain.ErrNotFound
// (possibly wrapped) when a lookup matches nothing.
type Store interface {
	Append(ctx context.Context, tx domain.Transaction) error
	Get(ctx context.Context, id string) (domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (domain.Transaction, error)
	// ListByUser returns the user's records oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error)
	Update(ctx context.Context, tx domain.Transaction) error
}

// ChargeRequest asks the gateway to collect a saving from the user's wallet.
type ChargeRequest struct {
	Reference   string
	UserID      string
	PhoneNumber string
	Amount      decimal.Decimal
	Metadata    map[string]string
}

// PayoutRequest asks the gateway to send savings back to the user.
type PayoutRequest struct {
	Reference   string
	UserID      string
	PhoneNumber string
	Amount      decimal.Decimal
	Reason      string
}

// GatewayStatus is the provider's view of a money movement right after it
// was requested.
type GatewayStatus string

const (
	GatewayPending GatewayStatus = "pending"
	GatewaySuccess GatewayStatus = "success"
	GatewayFailed  GatewayStatus = "failed"
)

// GatewayResult is returned by PaymentGateway calls.
type GatewayResult struct {
	Reference string
	Status    GatewayStatus
	Message   string
	// CheckoutURL is set when the payer has to authorise a pending charge.
	CheckoutURL string
}

// PaymentGateway moves money. Pending results are confirmed later through
// Service.ConfirmTransfer.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (GatewayResult, error)
	Payout(ctx context.Context, req PayoutRequest) (GatewayResult, error)
}

// Publisher emits change events for stored records.
type Publisher interface {
	Publish(ctx context.Context, event domain.TransactionEvent) error
}

// Dispatcher schedules InitiateTransfer in the background and returns the
// job id.
type Dispatcher interface {
	Dispatch(ctx context.Context, transactionID string) (string, error)
}
