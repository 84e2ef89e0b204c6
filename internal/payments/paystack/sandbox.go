package paystack

import (
	"context"

	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/rs/zerolog"
)

// Sandbox is the gateway used when no secret key is configured. Every
// charge and payout succeeds immediately with the request reference.
type Sandbox struct {
	log zerolog.Logger
}

func NewSandbox(log zerolog.Logger) *Sandbox {
	return &Sandbox{log: log}
}

func (s *Sandbox) Charge(ctx context.Context, req savings.ChargeRequest) (savings.GatewayResult, error) {
	if _, err := ToMinorUnits(req.Amount); err != nil {
		return savings.GatewayResult{Reference: req.Reference, Status: savings.GatewayFailed, Message: err.Error()}, nil
	}
	s.log.Debug().Str("reference", req.Reference).Str("amount", req.Amount.String()).Msg("Sandbox charge")
	return savings.GatewayResult{Reference: "sandbox-" + req.Reference, Status: savings.GatewaySuccess}, nil
}

func (s *Sandbox) Payout(ctx context.Context, req savings.PayoutRequest) (savings.GatewayResult, error) {
	if _, err := ToMinorUnits(req.Amount); err != nil {
		return savings.GatewayResult{Reference: req.Reference, Status: savings.GatewayFailed, Message: err.Error()}, nil
	}
	s.log.Debug().Str("reference", req.Reference).Str("amount", req.Amount.String()).Msg("Sandbox payout")
	return savings.GatewayResult{Reference: "sandbox-" + req.Reference, Status: savings.GatewaySuccess}, nil
}

var _ savings.PaymentGateway = (*Sandbox)(nil)
