package roundup

import (
	"errors"
	"strings"
	"testing"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecide_Scenarios(t *testing.T) {
	tests := []struct {
		amount  string
		roundTo string
		saved   string
	}{
		{"89", "90", "1"},
		{"233", "250", "17"},
		{"1250", "1300", "50"},
		{"1599", "1600", "1"},
		{"1901", "2000", "99"},
		{"9990", "10000", "10"},
		{"9905", "10000", "95"},
		{"9801", "9900", "99"},
		{"905", "1000", "95"},
		{"0", "0", "0"},
		{"90", "90", "0"},
		{"100", "100", "0"},
		{"499", "500", "1"},
		{"500", "500", "0"},
		{"12.5", "20", "7.5"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			d, err := Decide(dec(tt.amount), domain.SpendingProfile{}, false)
			if err != nil {
				t.Fatalf("Decide(%s) error = %v", tt.amount, err)
			}
			if !d.RoundTo.Equal(dec(tt.roundTo)) {
				t.Errorf("RoundTo = %s, want %s", d.RoundTo, tt.roundTo)
			}
			if !d.Saved.Equal(dec(tt.saved)) {
				t.Errorf("Saved = %s, want %s", d.Saved, tt.saved)
			}
			if d.Source != domain.SourceBasic {
				t.Errorf("Source = %q, want %q", d.Source, domain.SourceBasic)
			}
		})
	}
}

func TestDecide_NegativeAmount(t *testing.T) {
	_, err := Decide(dec("-1"), domain.SpendingProfile{}, false)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestDecide_TierProperties(t *testing.T) {
	ten := decimal.NewFromInt(10)
	fifty := decimal.NewFromInt(50)

	for cents := int64(0); cents <= 1_200_000; cents += 37 {
		amount := decimal.New(cents, -2)

		for _, assisted := range []bool{false, true} {
			d, err := Decide(amount, domain.SpendingProfile{AverageTransaction: dec("250")}, assisted)
			if err != nil {
				t.Fatalf("Decide(%s) error = %v", amount, err)
			}
			if d.RoundTo.LessThan(amount) {
				t.Fatalf("Decide(%s).RoundTo = %s, below amount", amount, d.RoundTo)
			}
			if !d.Saved.Equal(d.RoundTo.Sub(amount)) {
				t.Fatalf("Decide(%s): saved %s != roundTo - amount", amount, d.Saved)
			}

			switch {
			case amount.LessThan(dec("100")):
				want := amount.Div(ten).Ceil().Mul(ten)
				if !d.RoundTo.Equal(want) || !d.RoundTo.Mod(ten).IsZero() {
					t.Fatalf("Decide(%s).RoundTo = %s, want %s", amount, d.RoundTo, want)
				}
			case amount.LessThan(dec("500")):
				if !d.RoundTo.Mod(fifty).IsZero() {
					t.Fatalf("Decide(%s).RoundTo = %s, not a multiple of 50", amount, d.RoundTo)
				}
			default:
				if d.Saved.GreaterThan(MaxSavings) {
					t.Fatalf("Decide(%s).Saved = %s, above cap", amount, d.Saved)
				}
				if !d.RoundTo.Equal(amount.Add(d.Saved)) {
					t.Fatalf("Decide(%s): roundTo %s != amount + saved", amount, d.RoundTo)
				}
			}
		}
	}
}

func TestDecide_AssistedChangesOnlyReason(t *testing.T) {
	profile := domain.SpendingProfile{
		AverageTransaction: dec("400"),
		SavingsRatePercent: dec("2.34"),
	}
	for _, amount := range []string{"7", "89", "150", "233", "450", "675", "1200"} {
		basic, _ := Decide(dec(amount), profile, false)
		assisted, _ := Decide(dec(amount), profile, true)

		if !basic.RoundTo.Equal(assisted.RoundTo) || !basic.Saved.Equal(assisted.Saved) {
			t.Errorf("amount %s: basic %s/%s differs from assisted %s/%s",
				amount, basic.RoundTo, basic.Saved, assisted.RoundTo, assisted.Saved)
		}
		if basic.Reason == assisted.Reason {
			t.Errorf("amount %s: expected different rationale", amount)
		}
		if assisted.Source != domain.SourceAssisted {
			t.Errorf("amount %s: Source = %q", amount, assisted.Source)
		}
	}
}

func TestDecide_AssistedReasons(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		profile domain.SpendingProfile
		want    string
	}{
		{
			name:    "small below average",
			amount:  "89",
			profile: domain.SpendingProfile{AverageTransaction: dec("300")},
			want:    "Small purchase (below your average)",
		},
		{
			name:    "small at average",
			amount:  "89",
			profile: domain.SpendingProfile{AverageTransaction: dec("89")},
			want:    "Small purchase (at your average)",
		},
		{
			name:    "mid tier high capacity low rate",
			amount:  "233",
			profile: domain.SpendingProfile{AverageTransaction: dec("450"), SavingsRatePercent: dec("3.26")},
			want:    "savings rate is 3.3%",
		},
		{
			name:    "mid tier balanced when rate healthy",
			amount:  "233",
			profile: domain.SpendingProfile{AverageTransaction: dec("450"), SavingsRatePercent: dec("7")},
			want:    "Balanced roundup to nearest 50 KES",
		},
		{
			name:    "mid tier balanced when average low",
			amount:  "233",
			profile: domain.SpendingProfile{AverageTransaction: dec("300"), SavingsRatePercent: dec("1")},
			want:    "Balanced roundup to nearest 50 KES",
		},
		{
			name:    "large purchase",
			amount:  "1250",
			profile: domain.SpendingProfile{AverageTransaction: dec("300")},
			want:    "Large purchase detected",
		},
		{
			name:    "exact multiple",
			amount:  "1300",
			profile: domain.SpendingProfile{AverageTransaction: dec("300")},
			want:    "Nothing to round up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decide(dec(tt.amount), tt.profile, true)
			if err != nil {
				t.Fatalf("Decide error = %v", err)
			}
			if !strings.Contains(d.Reason, tt.want) {
				t.Errorf("Reason = %q, want it to contain %q", d.Reason, tt.want)
			}
		})
	}
}

func TestDecide_HighPrecisionAmounts(t *testing.T) {
	tests := []struct {
		amount  string
		roundTo string
	}{
		{"0.00000000000000001", "10"},
		{"10.00000000000000001", "20"},
		{"99.999999999999999999", "100"},
		{"500.000000000000000001", "600"},
		{"1234.5", "1300"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount := dec(tt.amount)
			for _, d := range []domain.RoundupDecision{mustDecide(t, amount), Fallback(amount)} {
				if !d.RoundTo.Equal(dec(tt.roundTo)) {
					t.Errorf("%s: RoundTo = %s, want %s", d.Source, d.RoundTo, tt.roundTo)
				}
				if d.Saved.IsNegative() || !d.RoundTo.Equal(amount.Add(d.Saved)) {
					t.Errorf("%s: Saved = %s breaks roundTo = amount + saved", d.Source, d.Saved)
				}
			}
		})
	}
}

func mustDecide(t *testing.T, amount decimal.Decimal) domain.RoundupDecision {
	t.Helper()
	d, err := Decide(amount, domain.SpendingProfile{}, false)
	if err != nil {
		t.Fatalf("Decide(%s) error = %v", amount, err)
	}
	return d
}

func TestTierApply_CapNeverBindsForHundredStep(t *testing.T) {
	large := tiers[len(tiers)-1]
	for cents := int64(50_000); cents < 60_000; cents++ {
		_, saved, capped := large.apply(decimal.New(cents, -2))
		if capped {
			t.Fatalf("cap bound at %s (saved %s)", decimal.New(cents, -2), saved)
		}
	}
}

func TestTierApply_CapClampsSaving(t *testing.T) {
	wide := tier{step: decimal.NewFromInt(1000), capped: true}
	roundTo, saved, capped := wide.apply(dec("1250"))
	if !capped {
		t.Fatal("expected the cap to bind for a 1000 step")
	}
	if !saved.Equal(MaxSavings) {
		t.Errorf("saved = %s, want %s", saved, MaxSavings)
	}
	if !roundTo.Equal(dec("1350")) {
		t.Errorf("roundTo = %s, want 1350 (amount + capped saving)", roundTo)
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		amount string
		saved  string
		reason string
	}{
		{"89", "1", "nearest 10 KES"},
		{"233", "17", "nearest 50 KES"},
		{"1250", "50", "100 KES cap"},
		{"-5", "0", "nearest 10 KES"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			d := Fallback(dec(tt.amount))
			if !d.Saved.Equal(dec(tt.saved)) {
				t.Errorf("Saved = %s, want %s", d.Saved, tt.saved)
			}
			if !strings.HasPrefix(d.Reason, "AI unavailable.") || !strings.Contains(d.Reason, tt.reason) {
				t.Errorf("Reason = %q", d.Reason)
			}
			if d.Source != domain.SourceFallback {
				t.Errorf("Source = %q", d.Source)
			}
		})
	}
}
