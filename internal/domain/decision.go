package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionSource records which path produced a RoundupDecision.
type DecisionSource string

const (
	// SourceBasic is the deterministic tier table with assistance switched off.
	SourceBasic DecisionSource = "basic"
	// SourceAssisted is the tier table with a profile-aware rationale, computed locally.
	SourceAssisted DecisionSource = "assisted"
	// SourceDelegated is a validated answer from the external advisor.
	SourceDelegated DecisionSource = "delegated"
	// SourceFallback is the tier table applied after the advisor failed.
	SourceFallback DecisionSource = "fallback"
)

// RoundupDecision is the engine's answer for a single spend.
type RoundupDecision struct {
	RoundTo decimal.Decimal `json:"roundTo"`
	Saved   decimal.Decimal `json:"saved"`
	Reason  string          `json:"reason"`
	Source  DecisionSource  `json:"source,omitempty"`
}

// SpendingProfile summarises a history snapshot. It is derived on demand and
// never stored.
type SpendingProfile struct {
	AverageTransaction decimal.Decimal `json:"average_transaction"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	TotalSaved         decimal.Decimal `json:"total_saved"`
	SavingsRatePercent decimal.Decimal `json:"savings_rate_percent"`
	Count              int             `json:"transaction_count"`
}

// SavingsRateDisplay is the savings rate rounded to one decimal place.
func (p SpendingProfile) SavingsRateDisplay() decimal.Decimal {
	return p.SavingsRatePercent.Round(1)
}

// AdvisorOutput is the audit record of one advisor round trip. Raw holds the
// model text as received, before cleanup and validation.
type AdvisorOutput struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Amount    decimal.Decimal `json:"amount"`
	Prompt    string          `json:"prompt"`
	Raw       string          `json:"raw"`
	Accepted  bool            `json:"accepted"`
	Error     string          `json:"error,omitempty"`
	Latency   time.Duration   `json:"latency"`
	CreatedAt time.Time       `json:"created_at"`
}
