// Package export renders a user's savings history as a CSV statement and
// uploads it to Cloud Storage.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

var statementHeader = []string{
	"transaction_id",
	"created_at",
	"kind",
	"status",
	"amount_spent",
	"rounded_to",
	"amount_saved",
	"currency",
	"source",
	"rationale",
	"reference",
}

// WriteStatementCSV writes one row per record followed by a TOTAL row
// summing amount_saved over completed records.
func WriteStatementCSV(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(statementHeader); err != nil {
		return fmt.Errorf("WriteStatementCSV: header: %w", err)
	}

	total := decimal.Zero
	for _, tx := range txs {
		if tx.Status == domain.StatusCompleted {
			total = total.Add(tx.AmountSaved)
		}
		row := []string{
			tx.ID,
			tx.CreatedAt.UTC().Format(time.RFC3339),
			string(tx.Kind),
			string(tx.Status),
			tx.AmountSpent.StringFixed(2),
			tx.RoundedTo.StringFixed(2),
			tx.AmountSaved.StringFixed(2),
			domain.Currency,
			string(tx.Source),
			tx.Rationale,
			tx.Reference,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteStatementCSV: row %s: %w", tx.ID, err)
		}
	}

	totalRow := make([]string, len(statementHeader))
	totalRow[0] = "TOTAL"
	totalRow[6] = total.StringFixed(2)
	totalRow[7] = domain.Currency
	if err := cw.Write(totalRow); err != nil {
		return fmt.Errorf("WriteStatementCSV: total: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteStatementCSV: flush: %w", err)
	}
	return nil
}
