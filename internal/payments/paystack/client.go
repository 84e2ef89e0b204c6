// Package paystack moves savings in and out of users' M-Pesa wallets through
// the Paystack API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.paystack.co"

	defaultEmailDomain  = "users.habahaba.app"
	defaultPayoutReason = "Haba Haba Savings Withdrawal"
	recipientName       = "Haba Haba User"
)

// ErrAPI is wrapped by every error reported by Paystack itself, as opposed
// to transport failures.
var ErrAPI = errors.New("paystack api error")

var minorUnits = decimal.NewFromInt(100)

// Client is a savings.PaymentGateway backed by Paystack.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	emailDomain string
	httpClient  *http.Client
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithCallbackURL sets where Paystack redirects the payer after checkout.
func WithCallbackURL(u string) Option {
	return func(c *Client) { c.callbackURL = u }
}

// WithEmailDomain sets the domain of the synthetic customer email Paystack
// requires for every charge.
func WithEmailDomain(d string) Option {
	return func(c *Client) {
		if d != "" {
			c.emailDomain = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a Paystack client authenticated with secretKey.
func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		secretKey:   secretKey,
		emailDomain: defaultEmailDomain,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common Paystack response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference,omitempty"`
	Channels    []string          `json:"channels"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Charge initialises a KES mobile-money transaction. The result stays
// pending until the charge.success webhook arrives; CheckoutURL is where the
// payer authorises it.
func (c *Client) Charge(ctx context.Context, req savings.ChargeRequest) (savings.GatewayResult, error) {
	amount, err := ToMinorUnits(req.Amount)
	if err != nil {
		return savings.GatewayResult{}, fmt.Errorf("Charge: %w", err)
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.PhoneNumber != "" {
		metadata["phone_number"] = req.PhoneNumber
	}

	body := initializeRequest{
		Email:       c.customerEmail(req.UserID, req.PhoneNumber),
		Amount:      amount,
		Currency:    domain.Currency,
		Reference:   req.Reference,
		Channels:    []string{"mobile_money"},
		CallbackURL: c.callbackURL,
		Metadata:    metadata,
	}

	var data initializeData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return savings.GatewayResult{}, fmt.Errorf("Charge: %w", err)
	}

	ref := data.Reference
	if ref == "" {
		ref = req.Reference
	}
	c.log.Info().Str("reference", ref).Str("user_id", req.UserID).Msg("Paystack charge initialised")

	return savings.GatewayResult{
		Reference:   ref,
		Status:      savings.GatewayPending,
		CheckoutURL: data.AuthorizationURL,
	}, nil
}

type recipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

type transferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Currency  string `json:"currency"`
	Reference string `json:"reference,omitempty"`
}

type transferData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

// Payout sends a withdrawal to the user's M-Pesa number: it registers the
// number as a transfer recipient and then transfers from the balance.
func (c *Client) Payout(ctx context.Context, req savings.PayoutRequest) (savings.GatewayResult, error) {
	amount, err := ToMinorUnits(req.Amount)
	if err != nil {
		return savings.GatewayResult{}, fmt.Errorf("Payout: %w", err)
	}
	if req.PhoneNumber == "" {
		return savings.GatewayResult{}, errors.New("Payout: phone number is required")
	}

	var recipient recipientData
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", recipientRequest{
		Type:          "mobile_money",
		Name:          recipientName,
		AccountNumber: LocalPhone(req.PhoneNumber),
		BankCode:      "MPESA",
		Currency:      domain.Currency,
	}, &recipient); err != nil {
		return savings.GatewayResult{}, fmt.Errorf("Payout: creating recipient: %w", err)
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultPayoutReason
	}

	var transfer transferData
	if err := c.do(ctx, http.MethodPost, "/transfer", transferRequest{
		Source:    "balance",
		Amount:    amount,
		Recipient: recipient.RecipientCode,
		Reason:    reason,
		Currency:  domain.Currency,
		Reference: req.Reference,
	}, &transfer); err != nil {
		return savings.GatewayResult{}, fmt.Errorf("Payout: transfer: %w", err)
	}

	ref := transfer.Reference
	if ref == "" {
		ref = req.Reference
	}
	c.log.Info().
		Str("reference", ref).
		Str("transfer_code", transfer.TransferCode).
		Str("status", transfer.Status).
		Msg("Paystack transfer requested")

	return savings.GatewayResult{
		Reference: ref,
		Status:    transferStatus(transfer.Status),
		Message:   transfer.TransferCode,
	}, nil
}

// Verification is the state of a charge as reported by /transaction/verify.
type Verification struct {
	Reference       string
	Status          string
	Amount          decimal.Decimal
	GatewayResponse string
	Metadata        map[string]any
}

// Succeeded reports whether the charge went through.
func (v Verification) Succeeded() bool {
	return v.Status == "success"
}

// Terminal reports whether the charge can no longer change state.
func (v Verification) Terminal() bool {
	switch v.Status {
	case "success", "failed", "abandoned", "reversed":
		return true
	}
	return false
}

type verifyData struct {
	Reference       string         `json:"reference"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	GatewayResponse string         `json:"gateway_response"`
	Metadata        map[string]any `json:"metadata"`
}

// Verify fetches the current state of the charge with reference.
func (c *Client) Verify(ctx context.Context, reference string) (Verification, error) {
	if reference == "" {
		return Verification{}, errors.New("Verify: reference is required")
	}

	var data verifyData
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return Verification{}, fmt.Errorf("Verify: %w", err)
	}

	return Verification{
		Reference:       data.Reference,
		Status:          data.Status,
		Amount:          FromMinorUnits(data.Amount),
		GatewayResponse: data.GatewayResponse,
		Metadata:        data.Metadata,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: status %d: decoding response: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrAPI, method, path, resp.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decoding data: %w", method, path, err)
		}
	}
	return nil
}

// customerEmail synthesises the email Paystack requires for a customer that
// only has a phone number.
func (c *Client) customerEmail(userID, phone string) string {
	local := phone
	if local == "" {
		local = userID
	}
	local = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return -1
	}, local)
	if local == "" {
		local = "customer"
	}
	return local + "@" + c.emailDomain
}

func transferStatus(s string) savings.GatewayStatus {
	switch s {
	case "success":
		return savings.GatewaySuccess
	case "failed", "reversed", "rejected", "abandoned":
		return savings.GatewayFailed
	}
	return savings.GatewayPending
}

// ToMinorUnits converts a KES amount to cents as Paystack expects.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	cents := amount.Mul(minorUnits)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount)
	}
	return cents.IntPart(), nil
}

// FromMinorUnits converts cents to a KES amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// LocalPhone rewrites an international Kenyan number (254…) to the local
// 0… form M-Pesa recipients use.
func LocalPhone(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if strings.HasPrefix(phone, "254") {
		return "0" + phone[3:]
	}
	return phone
}

var _ savings.PaymentGateway = (*Client)(nil)
