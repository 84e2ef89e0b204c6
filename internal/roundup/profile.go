package roundup

import (
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeProfile derives spending statistics from a history snapshot.
//
// The average is taken over spend records only (withdrawals carry no spend);
// with no spend records the current amount stands in for it so the first
// decision is neither biased nor divided by zero. Totals are plain sums over
// the records given, so callers decide which records count.
func ComputeProfile(history []domain.Transaction, current decimal.Decimal) domain.SpendingProfile {
	totalSpent := decimal.Zero
	totalSaved := decimal.Zero
	spends := 0

	for _, t := range history {
		totalSpent = totalSpent.Add(t.AmountSpent)
		totalSaved = totalSaved.Add(t.AmountSaved)
		if t.AmountSpent.IsPositive() {
			spends++
		}
	}

	average := current
	if spends > 0 {
		average = totalSpent.Div(decimal.NewFromInt(int64(spends)))
	}

	rate := decimal.Zero
	if !totalSpent.IsZero() {
		rate = totalSaved.Div(totalSpent).Mul(hundred)
	}

	return domain.SpendingProfile{
		AverageTransaction: average,
		TotalSpent:         totalSpent,
		TotalSaved:         totalSaved,
		SavingsRatePercent: rate,
		Count:              len(history),
	}
}
