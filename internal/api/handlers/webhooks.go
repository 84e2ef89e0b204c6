package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/habahaba/roundup-savings/internal/api/middleware"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/payments/paystack"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/shopspring/decimal"
)

// WebhooksHandler receives payment provider callbacks.
type WebhooksHandler struct {
	svc         SavingsService
	paystackKey string
	assisted    bool
}

// NewWebhooksHandler creates a webhook handler. paystackKey verifies Paystack
// signatures and Paystack events are refused without it; assisted is the
// decision mode for M-Pesa spends.
func NewWebhooksHandler(svc SavingsService, paystackKey string, assisted bool) *WebhooksHandler {
	return &WebhooksHandler{svc: svc, paystackKey: paystackKey, assisted: assisted}
}

// Paystack handles POST /api/webhooks/paystack
func (h *WebhooksHandler) Paystack(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.paystackKey == "" {
		log.Warn().Msg("Paystack webhook received but no secret key is configured")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Paystack webhooks are not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if err := paystack.VerifySignature(h.paystackKey, body, r.Header.Get(paystack.SignatureHeader)); err != nil {
		log.Warn().Err(err).Msg("Rejected Paystack webhook")
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	ev, err := paystack.ParseEvent(body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid event")
		return
	}

	success, handled := ev.Outcome()
	if !handled {
		log.Debug().Str("event", ev.Event).Msg("Ignoring Paystack event")
		w.WriteHeader(http.StatusOK)
		return
	}

	tx, err := h.svc.ConfirmTransfer(r.Context(), ev.Data.Reference, success, ev.Note())
	if err != nil {
		// unknown references are acknowledged so the provider stops retrying
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, savings.ErrInvalidRequest) {
			log.Warn().Err(err).Str("event", ev.Event).Str("reference", ev.Data.Reference).Msg("Webhook for unknown transaction")
			w.WriteHeader(http.StatusOK)
			return
		}
		writeServiceError(w, r, err, "Failed to apply webhook")
		return
	}

	log.Info().
		Str("event", ev.Event).
		Str("transaction_id", tx.ID).
		Str("status", string(tx.Status)).
		Str("amount", ev.Amount().String()).
		Msg("Paystack webhook applied")
	w.WriteHeader(http.StatusOK)
}

type stkCallback struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (c stkCallback) item(name string) string {
	for _, it := range c.Body.STKCallback.CallbackMetadata.Item {
		if it.Name == name {
			return strings.Trim(string(it.Value), `"`)
		}
	}
	return ""
}

var mpesaAccepted = map[string]interface{}{"ResultCode": 0, "ResultDesc": "Accepted"}

// MpesaCallback handles POST /api/mpesa/callback. A successful STK payment is
// treated as a spend by the paying phone number. M-Pesa always gets an
// acceptance reply.
func (h *WebhooksHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var cb stkCallback
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cb); err != nil {
		log.Warn().Err(err).Msg("Malformed M-Pesa callback")
		middleware.WriteJSON(w, http.StatusOK, mpesaAccepted)
		return
	}

	stk := cb.Body.STKCallback
	if stk.ResultCode != 0 {
		log.Info().Int("result_code", stk.ResultCode).Str("result_desc", stk.ResultDesc).Msg("M-Pesa transaction failed")
		middleware.WriteJSON(w, http.StatusOK, mpesaAccepted)
		return
	}

	phone := cb.item("PhoneNumber")
	receipt := cb.item("MpesaReceiptNumber")
	amount, err := decimal.NewFromString(cb.item("Amount"))
	if err != nil || phone == "" {
		log.Warn().Str("receipt", receipt).Msg("M-Pesa callback missing amount or phone")
		middleware.WriteJSON(w, http.StatusOK, mpesaAccepted)
		return
	}

	res, err := h.svc.ProcessSpend(r.Context(), savings.SpendRequest{
		UserID:      phone,
		PhoneNumber: phone,
		Amount:      amount,
		Assisted:    h.assisted,
	})
	if err != nil {
		log.Error().Err(err).Str("receipt", receipt).Str("phone", phone).Msg("Failed to process M-Pesa spend")
	} else {
		log.Info().
			Str("receipt", receipt).
			Str("transaction_id", res.Transaction.ID).
			Str("saved", res.Decision.Saved.String()).
			Msg("M-Pesa spend processed")
	}
	middleware.WriteJSON(w, http.StatusOK, mpesaAccepted)
}
