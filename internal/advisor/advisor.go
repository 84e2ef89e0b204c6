package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/metrics"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the local request budget is exhausted.
var ErrRateLimited = errors.New("advisor rate limit exceeded")

// OutputSink stores advisor round trips for later review.
type OutputSink interface {
	RecordAdvisorOutput(ctx context.Context, out domain.AdvisorOutput) error
}

// Provider implements roundup.Advisor on top of a Completer.
type Provider struct {
	completer Completer
	limiter   *rate.Limiter
	sink      OutputSink
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithRatePerMinute limits outgoing requests. Zero or less disables the limit.
func WithRatePerMinute(n int) Option {
	return func(p *Provider) {
		if n <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// WithOutputSink records every round trip to sink.
func WithOutputSink(sink OutputSink) Option {
	return func(p *Provider) { p.sink = sink }
}

// WithMetrics reports latency and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithLogger sets the provider logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// NewProvider creates a Provider using completer.
func NewProvider(completer Completer, opts ...Option) *Provider {
	p := &Provider{
		completer: completer,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequestDecision asks the model for a roundup. Every failure is wrapped in
// roundup.ErrAssistedDecisionUnavailable. The returned decision is parsed but
// not validated; the engine does that.
func (p *Provider) RequestDecision(ctx context.Context, amount decimal.Decimal, profile domain.SpendingProfile) (domain.RoundupDecision, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		p.metrics.ObserveAdvisor("rate_limited", 0)
		return domain.RoundupDecision{}, fmt.Errorf("%w: %w", roundup.ErrAssistedDecisionUnavailable, ErrRateLimited)
	}

	prompt := buildPrompt(amount, profile)
	start := p.now()
	raw, err := p.completer.Complete(ctx, systemPrompt, prompt)
	elapsed := p.now().Sub(start)

	var d domain.RoundupDecision
	if err == nil {
		d, err = parseDecision(raw)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.ObserveAdvisor(outcome, elapsed)
	p.record(ctx, amount, prompt, raw, elapsed, err)

	if err != nil {
		return domain.RoundupDecision{}, fmt.Errorf("%w: %w", roundup.ErrAssistedDecisionUnavailable, err)
	}

	p.log.Debug().
		Str("amount", amount.String()).
		Str("round_to", d.RoundTo.String()).
		Str("saved", d.Saved.String()).
		Dur("latency", elapsed).
		Msg("Advisor proposed roundup")

	return d, nil
}

func (p *Provider) record(ctx context.Context, amount decimal.Decimal, prompt, raw string, elapsed time.Duration, cause error) {
	if p.sink == nil {
		return
	}

	out := domain.AdvisorOutput{
		ID:        uuid.New().String(),
		Model:     p.completer.Model(),
		Amount:    amount,
		Prompt:    prompt,
		Raw:       raw,
		Accepted:  cause == nil,
		Latency:   elapsed,
		CreatedAt: p.now().UTC(),
	}
	if cause != nil {
		out.Error = cause.Error()
	}

	// the request deadline may already have passed; the audit write gets its own
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.sink.RecordAdvisorOutput(ctx, out); err != nil {
		p.log.Warn().Err(err).Str("output_id", out.ID).Msg("Failed to record advisor output")
	}
}

type modelDecision struct {
	RoundTo decimal.NullDecimal `json:"roundTo"`
	Saved   decimal.NullDecimal `json:"saved"`
	Reason  string              `json:"reason"`
}

// parseDecision extracts the JSON object from raw model text. Amounts are
// rounded to cents.
func parseDecision(raw string) (domain.RoundupDecision, error) {
	clean := cleanModelJSON(raw)

	var md modelDecision
	if err := json.Unmarshal([]byte(clean), &md); err != nil {
		return domain.RoundupDecision{}, fmt.Errorf("parseDecision: unmarshal JSON: %w", err)
	}
	if !md.RoundTo.Valid {
		return domain.RoundupDecision{}, fmt.Errorf("parseDecision: missing roundTo")
	}
	if !md.Saved.Valid {
		return domain.RoundupDecision{}, fmt.Errorf("parseDecision: missing saved")
	}

	return domain.RoundupDecision{
		RoundTo: md.RoundTo.Decimal.Round(2),
		Saved:   md.Saved.Decimal.Round(2),
		Reason:  strings.TrimSpace(md.Reason),
	}, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
