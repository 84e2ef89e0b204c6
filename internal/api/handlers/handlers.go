package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/habahaba/roundup-savings/internal/api/middleware"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds JSON request bodies and webhook payloads.
const maxBodyBytes = 1 << 20

// SavingsService is the part of savings.Service the HTTP layer drives.
type SavingsService interface {
	ProcessSpend(ctx context.Context, req savings.SpendRequest) (savings.SpendResult, error)
	Preview(ctx context.Context, userID string, amount decimal.Decimal, assisted bool) (domain.RoundupDecision, domain.SpendingProfile, error)
	Withdraw(ctx context.Context, req savings.WithdrawRequest) (domain.Transaction, error)
	ConfirmTransfer(ctx context.Context, reference string, success bool, note string) (domain.Transaction, error)
	History(ctx context.Context, userID string) ([]domain.Transaction, error)
	Profile(ctx context.Context, userID string) (domain.SpendingProfile, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

var _ SavingsService = (*savings.Service)(nil)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, roundup.ErrInvalidAmount), errors.Is(err, savings.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, savings.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, savings.ErrTransfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs server-side failures and writes the error body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	middleware.WriteError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
