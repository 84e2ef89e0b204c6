package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/shopspring/decimal"
)

// MockCompleter is a func-field Completer.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, system, prompt string) (string, error)
	Prompts      []string
}

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.CompleteFunc(ctx, system, prompt)
}

func (m *MockCompleter) Model() string { return "mock-model" }

// MockSink collects advisor outputs.
type MockSink struct {
	Outputs []domain.AdvisorOutput
	Err     error
}

func (m *MockSink) RecordAdvisorOutput(ctx context.Context, out domain.AdvisorOutput) error {
	m.Outputs = append(m.Outputs, out)
	return m.Err
}

func answer(text string) *MockCompleter {
	return &MockCompleter{
		CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
			return text, nil
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProvider_RequestDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		roundTo string
		saved   string
		reason  string
	}{
		{
			name:    "plain JSON",
			raw:     `{"roundTo": 250, "saved": 17, "reason": "Mid-range spend."}`,
			roundTo: "250",
			saved:   "17",
			reason:  "Mid-range spend.",
		},
		{
			name:    "fenced JSON",
			raw:     "```json\n{\"roundTo\": 300, \"saved\": 67, \"reason\": \"Low savings rate.\"}\n```",
			roundTo: "300",
			saved:   "67",
			reason:  "Low savings rate.",
		},
		{
			name:    "surrounding text and quoted numbers",
			raw:     `Sure! {"roundTo": "250.004", "saved": "16.999", "reason": "  ok  "} Hope this helps.`,
			roundTo: "250",
			saved:   "17",
			reason:  "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(answer(tt.raw))

			d, err := p.RequestDecision(context.Background(), dec("233"), domain.SpendingProfile{})
			if err != nil {
				t.Fatalf("RequestDecision error = %v", err)
			}
			if !d.RoundTo.Equal(dec(tt.roundTo)) || !d.Saved.Equal(dec(tt.saved)) {
				t.Errorf("decision = %s/%s, want %s/%s", d.RoundTo, d.Saved, tt.roundTo, tt.saved)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestProvider_RequestDecision_Failures(t *testing.T) {
	tests := []struct {
		name      string
		completer *MockCompleter
	}{
		{
			name: "transport error",
			completer: &MockCompleter{CompleteFunc: func(ctx context.Context, system, prompt string) (string, error) {
				return "", errors.New("503 from upstream")
			}},
		},
		{name: "not JSON", completer: answer("I think you should save 17 KES")},
		{name: "missing roundTo", completer: answer(`{"saved": 17, "reason": "x"}`)},
		{name: "null saved", completer: answer(`{"roundTo": 250, "saved": null, "reason": "x"}`)},
		{name: "wrong type", completer: answer(`{"roundTo": true, "saved": 17, "reason": "x"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &MockSink{}
			p := NewProvider(tt.completer, WithOutputSink(sink))

			_, err := p.RequestDecision(context.Background(), dec("233"), domain.SpendingProfile{})
			if !errors.Is(err, roundup.ErrAssistedDecisionUnavailable) {
				t.Fatalf("error = %v, want ErrAssistedDecisionUnavailable", err)
			}
			if len(sink.Outputs) != 1 {
				t.Fatalf("recorded %d outputs, want 1", len(sink.Outputs))
			}
			if sink.Outputs[0].Accepted || sink.Outputs[0].Error == "" {
				t.Errorf("output = %+v, want rejected with error", sink.Outputs[0])
			}
		})
	}
}

func TestProvider_RecordsAcceptedOutput(t *testing.T) {
	sink := &MockSink{Err: errors.New("warehouse unavailable")}
	raw := `{"roundTo": 90, "saved": 1, "reason": "Small purchase."}`
	p := NewProvider(answer(raw), WithOutputSink(sink))

	if _, err := p.RequestDecision(context.Background(), dec("89"), domain.SpendingProfile{}); err != nil {
		t.Fatalf("sink failure must not fail the request: %v", err)
	}

	if len(sink.Outputs) != 1 {
		t.Fatalf("recorded %d outputs, want 1", len(sink.Outputs))
	}
	out := sink.Outputs[0]
	if !out.Accepted || out.Raw != raw || out.Model != "mock-model" || out.ID == "" {
		t.Errorf("output = %+v", out)
	}
	if !out.Amount.Equal(dec("89")) {
		t.Errorf("Amount = %s, want 89", out.Amount)
	}
}

func TestProvider_RateLimited(t *testing.T) {
	completer := answer(`{"roundTo": 90, "saved": 1, "reason": "ok"}`)
	p := NewProvider(completer, WithRatePerMinute(1))

	if _, err := p.RequestDecision(context.Background(), dec("89"), domain.SpendingProfile{}); err != nil {
		t.Fatalf("first request error = %v", err)
	}
	_, err := p.RequestDecision(context.Background(), dec("89"), domain.SpendingProfile{})
	if !errors.Is(err, ErrRateLimited) || !errors.Is(err, roundup.ErrAssistedDecisionUnavailable) {
		t.Errorf("second request error = %v, want rate limited", err)
	}
	if len(completer.Prompts) != 1 {
		t.Errorf("completer called %d times, want 1", len(completer.Prompts))
	}
}

func TestProvider_PromptCarriesProfile(t *testing.T) {
	completer := answer(`{"roundTo": 250, "saved": 17, "reason": "ok"}`)
	p := NewProvider(completer)
	profile := domain.SpendingProfile{
		AverageTransaction: dec("439.4"),
		SavingsRatePercent: dec("6.96404"),
		TotalSaved:         dec("153"),
		Count:              5,
	}

	if _, err := p.RequestDecision(context.Background(), dec("233"), profile); err != nil {
		t.Fatalf("RequestDecision error = %v", err)
	}

	prompt := completer.Prompts[0]
	for _, want := range []string{
		"Current transaction: KES 233",
		"Average transaction: KES 439",
		"Total transactions: 5",
		"Current savings rate: 6.96%",
		"Total saved so far: KES 153",
		"cap savings at 100 KES",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestProvider_WithEngineFallsBack(t *testing.T) {
	// a model answer that breaks the arithmetic is discarded by the engine
	p := NewProvider(answer(`{"roundTo": 260, "saved": 17, "reason": "ok"}`))
	engine := roundup.NewEngine(roundup.WithAdvisor(p, 0))

	d, err := engine.Decide(context.Background(), dec("233"), domain.SpendingProfile{}, true)
	if err != nil {
		t.Fatalf("Decide error = %v", err)
	}
	if d.Source != domain.SourceFallback || !d.RoundTo.Equal(dec("250")) {
		t.Errorf("decision = %+v, want fallback to 250", d)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{`Answer: {"a":{"b":2}} done`, `{"a":{"b":2}}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		if got := cleanModelJSON(tt.in); got != tt.want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
