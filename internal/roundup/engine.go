package roundup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultAdvisorTimeout bounds a single advisor call.
const DefaultAdvisorTimeout = 5 * time.Second

// Advisor is an external capability that proposes a roundup decision.
// Implementations must honour ctx cancellation.
type Advisor interface {
	RequestDecision(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error)
}

// Engine decides roundups, delegating to an Advisor when one is configured
// and assistance is requested. Advisor failures never reach the caller.
type Engine struct {
	advisor Advisor
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdvisor enables delegation. A non-positive timeout selects DefaultAdvisorTimeout.
func WithAdvisor(a Advisor, timeout time.Duration) Option {
	return func(e *Engine) {
		e.advisor = a
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates an Engine. Without options it decides purely locally.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout: DefaultAdvisorTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delegating reports whether assisted decisions go to an external advisor.
func (e *Engine) Delegating() bool {
	return e.advisor != nil
}

// Decide returns the roundup decision for amount. It fails only with
// ErrInvalidAmount.
func (e *Engine) Decide(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile, assisted bool) (domain.RoundupDecision, error) {
	if amount.IsNegative() {
		return domain.RoundupDecision{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if !assisted || e.advisor == nil {
		return Decide(amount, profile, assisted)
	}

	d, err := e.delegate(ctx, amount, profile)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("amount", amount.String()).
			Msg("Advisor decision rejected, applying deterministic rounding")
		return Fallback(amount), nil
	}
	return d, nil
}

// delegate makes the single bounded advisor attempt. Any failure, including
// a panic inside the advisor, comes back wrapped in ErrAssistedDecisionUnavailable.
func (e *Engine) delegate(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (d domain.RoundupDecision, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d = domain.RoundupDecision{}
			err = fmt.Errorf("%w: advisor panic: %v", ErrAssistedDecisionUnavailable, r)
		}
	}()

	d, err = e.advisor.RequestDecision(ctx, amount, profile)
	if err != nil {
		if errors.Is(err, ErrAssistedDecisionUnavailable) {
			return domain.RoundupDecision{}, err
		}
		return domain.RoundupDecision{}, fmt.Errorf("%w: %w", ErrAssistedDecisionUnavailable, err)
	}

	if err := ValidateDecision(amount, d); err != nil {
		return domain.RoundupDecision{}, fmt.Errorf("%w: %w", ErrAssistedDecisionUnavailable, err)
	}

	d.Source = domain.SourceDelegated
	return d, nil
}

// ValidateDecision checks an externally produced decision against the rules
// every roundup must satisfy.
func ValidateDecision(amount decimal.Decimal, d domain.RoundupDecision) error {
	t := tierFor(amount)
	switch {
	case d.Saved.IsNegative():
		return fmt.Errorf("%w: saved %s is negative", ErrDecisionOutOfContract, d.Saved)
	case d.RoundTo.LessThan(amount):
		return fmt.Errorf("%w: roundTo %s below amount %s", ErrDecisionOutOfContract, d.RoundTo, amount)
	case !d.RoundTo.Equal(amount.Add(d.Saved)):
		return fmt.Errorf("%w: roundTo %s != amount %s + saved %s", ErrDecisionOutOfContract, d.RoundTo, amount, d.Saved)
	case !t.onGrid(amount, d.RoundTo):
		return fmt.Errorf("%w: roundTo %s is not a multiple of %s", ErrDecisionOutOfContract, d.RoundTo, t.step)
	case t.capped && d.Saved.GreaterThan(MaxSavings):
		return fmt.Errorf("%w: saved %s exceeds %s", ErrDecisionOutOfContract, d.Saved, MaxSavings)
	case d.Reason == "":
		return fmt.Errorf("%w: empty reason", ErrDecisionOutOfContract)
	}
	return nil
}
