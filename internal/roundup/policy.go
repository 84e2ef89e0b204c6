package roundup

import (
	"fmt"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

// MaxSavings is the most a single roundup may divert.
var MaxSavings = decimal.NewFromInt(100)

var (
	assertiveAverage = decimal.NewFromInt(300)
	lowSavingsRate   = decimal.NewFromInt(5)
)

// tier is one row of the rounding table.
type tier struct {
	upper  decimal.Decimal // exclusive; zero means unbounded
	step   decimal.Decimal
	capped bool
}

var tiers = []tier{
	{upper: decimal.NewFromInt(100), step: decimal.NewFromInt(10)},
	{upper: decimal.NewFromInt(500), step: decimal.NewFromInt(50)},
	{step: decimal.NewFromInt(100), capped: true},
}

func tierFor(amount decimal.Decimal) tier {
	for _, t := range tiers {
		if t.upper.IsZero() || amount.LessThan(t.upper) {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// ceil rounds amount up to the next multiple of the step. Mod is exact at
// any scale, unlike Div which stops at DivisionPrecision digits.
func (t tier) ceil(amount decimal.Decimal) decimal.Decimal {
	rem := amount.Mod(t.step)
	if rem.IsZero() {
		return amount
	}
	return amount.Sub(rem).Add(t.step)
}

// onGrid reports whether roundTo is a target this tier may produce for amount.
func (t tier) onGrid(amount, roundTo decimal.Decimal) bool {
	if roundTo.Mod(t.step).IsZero() {
		return true
	}
	return t.capped && roundTo.Equal(amount.Add(MaxSavings))
}

// apply rounds amount up to the tier's step. In the capped tier the saving
// is clamped to MaxSavings and the target recomputed from it. With a step of
// 100 the raw remainder never exceeds 99.99, so the clamp does not bind today.
func (t tier) apply(amount decimal.Decimal) (roundTo, saved decimal.Decimal, capped bool) {
	roundTo = t.ceil(amount)
	saved = roundTo.Sub(amount)
	if t.capped && saved.GreaterThan(MaxSavings) {
		saved = MaxSavings
		roundTo = amount.Add(saved)
		capped = true
	}
	return roundTo, saved, capped
}

// Decide computes a roundup locally from the tier table. The numbers never
// depend on assisted; it only selects the profile-aware rationale.
func Decide(amount decimal.Decimal, profile domain.SpendingProfile, assisted bool) (domain.RoundupDecision, error) {
	if amount.IsNegative() {
		return domain.RoundupDecision{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	t := tierFor(amount)
	roundTo, saved, capped := t.apply(amount)

	d := domain.RoundupDecision{RoundTo: roundTo, Saved: saved}
	if assisted {
		d.Reason = assistedReason(amount, saved, capped, t, profile)
		d.Source = domain.SourceAssisted
	} else {
		d.Reason = fmt.Sprintf("AI disabled - basic rounding to nearest %s KES", t.step)
		d.Source = domain.SourceBasic
	}
	return d, nil
}

// Fallback is the deterministic decision used when the advisor could not be
// trusted. It never fails: a negative amount is treated as zero.
func Fallback(amount decimal.Decimal) domain.RoundupDecision {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	t := tierFor(amount)
	roundTo, saved, _ := t.apply(amount)

	reason := fmt.Sprintf("AI unavailable. Using basic rounding to nearest %s KES.", t.step)
	if t.capped {
		reason = fmt.Sprintf("AI unavailable. Using basic rounding with %s KES cap.", MaxSavings)
	}
	return domain.RoundupDecision{
		RoundTo: roundTo,
		Saved:   saved,
		Reason:  reason,
		Source:  domain.SourceFallback,
	}
}

func assistedReason(amount, saved decimal.Decimal, capped bool, t tier, p domain.SpendingProfile) string {
	if saved.IsZero() {
		return "Already a round amount. Nothing to round up this time."
	}

	switch {
	case t.step.Equal(tiers[0].step):
		position := "at"
		if amount.LessThan(p.AverageTransaction) {
			position = "below"
		}
		return fmt.Sprintf("Small purchase (%s your average). Conservative roundup to maintain momentum.", position)

	case !t.capped:
		if p.AverageTransaction.GreaterThan(assertiveAverage) && p.SavingsRatePercent.LessThan(lowSavingsRate) {
			return fmt.Sprintf("Your spending capacity is high but savings rate is %s%%. Moderate roundup recommended.",
				p.SavingsRateDisplay().StringFixed(1))
		}
		return "Mid-range transaction. Balanced roundup to nearest 50 KES."

	default:
		if capped {
			return fmt.Sprintf("Large purchase detected. Capped savings at %s KES to maintain affordability.", saved)
		}
		return fmt.Sprintf("Large purchase detected. Rounded to nearest 100 KES, saving %s KES to maintain affordability.", saved)
	}
}
