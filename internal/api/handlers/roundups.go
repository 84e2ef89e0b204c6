package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/habahaba/roundup-savings/internal/api/middleware"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/shopspring/decimal"
)

// RoundupsHandler handles spend, preview, history, profile and withdrawal
// endpoints.
type RoundupsHandler struct {
	svc      SavingsService
	assisted bool
}

// NewRoundupsHandler creates a new roundups handler. assisted is the mode
// used when a request does not choose one.
func NewRoundupsHandler(svc SavingsService, assisted bool) *RoundupsHandler {
	return &RoundupsHandler{svc: svc, assisted: assisted}
}

type spendRequest struct {
	UserID      string          `json:"user_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Assisted    *bool           `json:"assisted,omitempty"`
	Simulated   bool            `json:"simulated"`
}

func (h *RoundupsHandler) assistedFor(v *bool) bool {
	if v == nil {
		return h.assisted
	}
	return *v
}

// CreateRoundup handles POST /api/roundups
func (h *RoundupsHandler) CreateRoundup(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.ProcessSpend(r.Context(), savings.SpendRequest{
		UserID:      req.UserID,
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		Assisted:    h.assistedFor(req.Assisted),
		Simulated:   req.Simulated,
	})
	if err != nil {
		// the decision was made; return it alongside the failure
		if errors.Is(err, savings.ErrPersistence) || errors.Is(err, savings.ErrTransfer) {
			reqLog := logger.FromContext(r.Context())
			reqLog.Error().Err(err).Str("user_id", req.UserID).Msg("Roundup not completed")
			middleware.WriteJSON(w, statusFor(err), map[string]interface{}{
				"error":  "Failed to complete roundup",
				"result": res,
			})
			return
		}
		writeServiceError(w, r, err, "Failed to process spend")
		return
	}

	status := http.StatusCreated
	if res.JobID != "" {
		status = http.StatusAccepted
	}
	middleware.WriteJSON(w, status, res)
}

// PreviewRoundup handles POST /api/roundups/preview
func (h *RoundupsHandler) PreviewRoundup(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	decision, profile, err := h.svc.Preview(r.Context(), req.UserID, req.Amount, h.assistedFor(req.Assisted))
	if err != nil {
		writeServiceError(w, r, err, "Failed to preview roundup")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"decision": decision,
		"profile":  profile,
	})
}

// ListTransactions handles GET /api/transactions?user_id=
func (h *RoundupsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	txs, err := h.svc.History(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetProfile handles GET /api/profile?user_id=
func (h *RoundupsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load profile")
		return
	}
	balance, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load balance")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"profile":      profile,
		"savings_rate": profile.SavingsRateDisplay(),
		"balance":      balance,
		"currency":     domain.Currency,
	})
}

// CreateWithdrawal handles POST /api/withdrawals
func (h *RoundupsHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string          `json:"user_id"`
		PhoneNumber string          `json:"phone_number"`
		Amount      decimal.Decimal `json:"amount"`
		Reason      string          `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.svc.Withdraw(r.Context(), savings.WithdrawRequest{
		UserID:      req.UserID,
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to withdraw")
		return
	}

	status := http.StatusCreated
	if tx.Status == domain.StatusPending {
		status = http.StatusAccepted
	}
	middleware.WriteJSON(w, status, tx)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return userID, true
}
