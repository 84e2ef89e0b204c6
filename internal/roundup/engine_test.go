package roundup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockAdvisor is a func-field Advisor for tests.
type MockAdvisor struct {
	RequestDecisionFunc func(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error)
	Calls               int
}

func (m *MockAdvisor) RequestDecision(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error) {
	m.Calls++
	return m.RequestDecisionFunc(ctx, amount, profile)
}

func failingAdvisor(err error) *MockAdvisor {
	return &MockAdvisor{
		RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error) {
			return domain.RoundupDecision{}, err
		},
	}
}

func TestEngine_BasicModeNeverCallsAdvisor(t *testing.T) {
	advisor := failingAdvisor(errors.New("should not be called"))
	engine := NewEngine(WithAdvisor(advisor, time.Second))

	d, err := engine.Decide(context.Background(), dec("89"), domain.SpendingProfile{}, false)
	if err != nil {
		t.Fatalf("Decide error = %v", err)
	}
	if advisor.Calls != 0 {
		t.Errorf("advisor called %d times in basic mode", advisor.Calls)
	}
	if d.Source != domain.SourceBasic || !d.RoundTo.Equal(dec("90")) {
		t.Errorf("decision = %+v", d)
	}
}

func TestEngine_AssistedWithoutAdvisorIsLocal(t *testing.T) {
	engine := NewEngine()
	if engine.Delegating() {
		t.Fatal("engine without advisor reports delegation")
	}

	d, err := engine.Decide(context.Background(), dec("233"), domain.SpendingProfile{AverageTransaction: dec("100")}, true)
	if err != nil {
		t.Fatalf("Decide error = %v", err)
	}
	if d.Source != domain.SourceAssisted {
		t.Errorf("Source = %q, want %q", d.Source, domain.SourceAssisted)
	}
	if !d.Saved.Equal(dec("17")) {
		t.Errorf("Saved = %s, want 17", d.Saved)
	}
}

func TestEngine_DelegatedDecisionAccepted(t *testing.T) {
	advisor := &MockAdvisor{
		RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("advisor called without a deadline")
			}
			return domain.RoundupDecision{RoundTo: dec("300"), Saved: dec("67"), Reason: "Low savings rate, stretching a little."}, nil
		},
	}
	engine := NewEngine(WithAdvisor(advisor, time.Second))

	d, err := engine.Decide(context.Background(), dec("233"), domain.SpendingProfile{}, true)
	if err != nil {
		t.Fatalf("Decide error = %v", err)
	}
	if d.Source != domain.SourceDelegated {
		t.Errorf("Source = %q, want %q", d.Source, domain.SourceDelegated)
	}
	if !d.RoundTo.Equal(dec("300")) || !d.Saved.Equal(dec("67")) {
		t.Errorf("decision = %s/%s, want 300/67", d.RoundTo, d.Saved)
	}
}

func TestEngine_FallbackOnAdvisorFailure(t *testing.T) {
	tests := []struct {
		name    string
		advisor *MockAdvisor
	}{
		{
			name:    "transport error",
			advisor: failingAdvisor(errors.New("connection reset")),
		},
		{
			name:    "unavailable error",
			advisor: failingAdvisor(ErrAssistedDecisionUnavailable),
		},
		{
			name: "negative saving",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: amount.Sub(dec("5")), Saved: dec("-5"), Reason: "x"}, nil
			}},
		},
		{
			name: "target below amount",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: dec("1"), Saved: dec("0"), Reason: "x"}, nil
			}},
		},
		{
			name: "inconsistent arithmetic",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: amount.Add(dec("20")), Saved: dec("3"), Reason: "x"}, nil
			}},
		},
		{
			name: "saving above cap",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: amount.Add(dec("150")), Saved: dec("150"), Reason: "x"}, nil
			}},
		},
		{
			name: "empty reason",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: dec("250"), Saved: dec("17")}, nil
			}},
		},
		{
			name: "target off the tier grid",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				return domain.RoundupDecision{RoundTo: amount.Add(dec("0.5")), Saved: dec("0.5"), Reason: "x"}, nil
			}},
		},
		{
			name: "panic",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				panic("boom")
			}},
		},
		{
			name: "timeout",
			advisor: &MockAdvisor{RequestDecisionFunc: func(ctx context.Context, amount decimal.Decimal, p domain.SpendingProfile) (domain.RoundupDecision, error) {
				<-ctx.Done()
				return domain.RoundupDecision{}, ctx.Err()
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			engine := NewEngine(
				WithAdvisor(tt.advisor, 20*time.Millisecond),
				WithLogger(zerolog.New(buf)),
			)

			d, err := engine.Decide(context.Background(), dec("233"), domain.SpendingProfile{}, true)
			if err != nil {
				t.Fatalf("Decide error = %v", err)
			}
			if d.Source != domain.SourceFallback {
				t.Errorf("Source = %q, want %q", d.Source, domain.SourceFallback)
			}
			if !d.RoundTo.Equal(dec("250")) || !d.Saved.Equal(dec("17")) {
				t.Errorf("decision = %s/%s, want 250/17", d.RoundTo, d.Saved)
			}
			if !strings.Contains(d.Reason, "AI unavailable") {
				t.Errorf("Reason = %q, want fallback marker", d.Reason)
			}
			if !strings.Contains(buf.String(), "Advisor decision rejected") {
				t.Errorf("expected fallback to be logged, got %q", buf.String())
			}
		})
	}
}

func TestEngine_FallbackGuaranteeAcrossTiers(t *testing.T) {
	engine := NewEngine(WithAdvisor(failingAdvisor(errors.New("down")), time.Second))
	ten := decimal.NewFromInt(10)
	fifty := decimal.NewFromInt(50)

	for cents := int64(0); cents <= 300_000; cents += 113 {
		amount := decimal.New(cents, -2)
		d, err := engine.Decide(context.Background(), amount, domain.SpendingProfile{}, true)
		if err != nil {
			t.Fatalf("Decide(%s) error = %v", amount, err)
		}
		if err := ValidateDecision(amount, d); err != nil {
			t.Fatalf("Decide(%s) produced invalid decision: %v", amount, err)
		}
		switch {
		case amount.LessThan(dec("100")):
			if !d.RoundTo.Mod(ten).IsZero() {
				t.Fatalf("Decide(%s).RoundTo = %s", amount, d.RoundTo)
			}
		case amount.LessThan(dec("500")):
			if !d.RoundTo.Mod(fifty).IsZero() {
				t.Fatalf("Decide(%s).RoundTo = %s", amount, d.RoundTo)
			}
		default:
			if d.Saved.GreaterThan(MaxSavings) {
				t.Fatalf("Decide(%s).Saved = %s", amount, d.Saved)
			}
		}
	}
}

func TestEngine_InvalidAmount(t *testing.T) {
	advisor := failingAdvisor(errors.New("unused"))
	engine := NewEngine(WithAdvisor(advisor, time.Second))

	_, err := engine.Decide(context.Background(), dec("-0.01"), domain.SpendingProfile{}, true)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
	if advisor.Calls != 0 {
		t.Errorf("advisor called for invalid amount")
	}
}

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		d       domain.RoundupDecision
		wantErr bool
	}{
		{"valid", "233", domain.RoundupDecision{RoundTo: dec("250"), Saved: dec("17"), Reason: "ok"}, false},
		{"zero saving", "250", domain.RoundupDecision{RoundTo: dec("250"), Saved: dec("0"), Reason: "ok"}, false},
		{"at cap", "1250", domain.RoundupDecision{RoundTo: dec("1350"), Saved: dec("100"), Reason: "ok"}, false},
		{"negative", "233", domain.RoundupDecision{RoundTo: dec("230"), Saved: dec("-3"), Reason: "ok"}, true},
		{"below amount", "233", domain.RoundupDecision{RoundTo: dec("200"), Saved: dec("0"), Reason: "ok"}, true},
		{"mismatch", "233", domain.RoundupDecision{RoundTo: dec("250"), Saved: dec("10"), Reason: "ok"}, true},
		{"over cap", "1250", domain.RoundupDecision{RoundTo: dec("1400"), Saved: dec("150"), Reason: "ok"}, true},
		{"no reason", "233", domain.RoundupDecision{RoundTo: dec("250"), Saved: dec("17")}, true},
		{"off the tier grid", "89", domain.RoundupDecision{RoundTo: dec("89.5"), Saved: dec("0.5"), Reason: "ok"}, true},
		{"off the mid grid", "233", domain.RoundupDecision{RoundTo: dec("240"), Saved: dec("7"), Reason: "ok"}, true},
		{"larger step on grid", "89", domain.RoundupDecision{RoundTo: dec("100"), Saved: dec("11"), Reason: "ok"}, false},
		{"uncapped tier above 100", "450", domain.RoundupDecision{RoundTo: dec("600"), Saved: dec("150"), Reason: "ok"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDecision(dec(tt.amount), tt.d)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDecision() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrDecisionOutOfContract) {
				t.Errorf("error %v does not wrap ErrDecisionOutOfContract", err)
			}
		})
	}
}
