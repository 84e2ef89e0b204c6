package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the scale of BigQuery NUMERIC columns.
const numericScale = 9

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	PhoneNumber bigquery.NullString `bigquery:"phone_number"` // NULLABLE
	Kind        string              `bigquery:"kind"`         // REQUIRED

	AmountSpent *big.Rat `bigquery:"amount_spent"` // REQUIRED NUMERIC
	RoundedTo   *big.Rat `bigquery:"rounded_to"`   // REQUIRED NUMERIC
	AmountSaved *big.Rat `bigquery:"amount_saved"` // REQUIRED NUMERIC
	Currency    string   `bigquery:"currency"`     // REQUIRED

	Rationale string              `bigquery:"rationale"` // REQUIRED
	Source    bigquery.NullString `bigquery:"source"`    // NULLABLE
	Status    string              `bigquery:"status"`    // REQUIRED

	Reference   bigquery.NullString `bigquery:"reference"`    // NULLABLE
	CheckoutURL bigquery.NullString `bigquery:"checkout_url"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

func toTransactionRow(tx domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		PhoneNumber:   nullString(tx.PhoneNumber),
		Kind:          string(tx.Kind),
		AmountSpent:   tx.AmountSpent.Rat(),
		RoundedTo:     tx.RoundedTo.Rat(),
		AmountSaved:   tx.AmountSaved.Rat(),
		Currency:      domain.Currency,
		Rationale:     tx.Rationale,
		Source:        nullString(string(tx.Source)),
		Status:        string(tx.Status),
		Reference:     nullString(tx.Reference),
		CheckoutURL:   nullString(tx.CheckoutURL),
		CreatedTS:     tx.CreatedAt,
		UpdatedTS:     tx.UpdatedAt,
	}
}

func (r *TransactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		PhoneNumber: r.PhoneNumber.StringVal,
		Kind:        domain.Kind(r.Kind),
		AmountSpent: ratToDecimal(r.AmountSpent),
		RoundedTo:   ratToDecimal(r.RoundedTo),
		AmountSaved: ratToDecimal(r.AmountSaved),
		Rationale:   r.Rationale,
		Source:      domain.DecisionSource(r.Source.StringVal),
		Status:      domain.Status(r.Status),
		Reference:   r.Reference.StringVal,
		CheckoutURL: r.CheckoutURL.StringVal,
		CreatedAt:   r.CreatedTS.UTC(),
		UpdatedAt:   r.UpdatedTS.UTC(),
	}
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
