package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
const SignatureHeader = "X-Paystack-Signature"

// Webhook event names acted upon.
const (
	EventChargeSuccess    = "charge.success"
	EventChargeFailed     = "charge.failed"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the signature Paystack sends for body.
func Sign(secretKey string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the raw request body.
func VerifySignature(secretKey string, body []byte, signature string) error {
	if secretKey == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(secretKey, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Event is a Paystack webhook payload.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference       string         `json:"reference"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	GatewayResponse string         `json:"gateway_response"`
	Reason          string         `json:"reason"`
	Metadata        map[string]any `json:"metadata"`
	Customer        struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("ParseEvent: %w", err)
	}
	if ev.Event == "" {
		return Event{}, errors.New("ParseEvent: missing event name")
	}
	return ev, nil
}

// Outcome maps the event to a transfer result. handled is false for events
// that carry no settlement.
func (e Event) Outcome() (success, handled bool) {
	switch e.Event {
	case EventChargeSuccess, EventTransferSuccess:
		return true, true
	case EventChargeFailed, EventTransferFailed, EventTransferReversed:
		return false, true
	}
	return false, false
}

// Amount returns the event amount in KES.
func (e Event) Amount() decimal.Decimal {
	return FromMinorUnits(e.Data.Amount)
}

// Note is a short human-readable description of the settlement.
func (e Event) Note() string {
	if e.Data.GatewayResponse != "" {
		return e.Data.GatewayResponse
	}
	if e.Data.Reason != "" {
		return e.Data.Reason
	}
	return e.Event
}
