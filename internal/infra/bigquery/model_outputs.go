package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/habahaba/roundup-savings/internal/domain"
)

// maxTextLen bounds free-text columns written from model output.
const maxTextLen = 8000

type AdvisorOutputRow struct {
	OutputID  string `bigquery:"output_id"`  // REQUIRED
	ModelName string `bigquery:"model_name"` // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	Prompt  bigquery.NullString `bigquery:"prompt"`   // NULLABLE
	RawText bigquery.NullString `bigquery:"raw_text"` // NULLABLE

	Accepted     bool                `bigquery:"accepted"`      // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
	LatencyMS    int64               `bigquery:"latency_ms"`    // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func toAdvisorOutputRow(out domain.AdvisorOutput) *AdvisorOutputRow {
	return &AdvisorOutputRow{
		OutputID:     out.ID,
		ModelName:    out.Model,
		Amount:       out.Amount.Rat(),
		Prompt:       nullString(truncate(out.Prompt)),
		RawText:      nullString(truncate(out.Raw)),
		Accepted:     out.Accepted,
		ErrorMessage: nullString(truncate(out.Error)),
		LatencyMS:    out.Latency.Milliseconds(),
		CreatedTS:    out.CreatedAt,
	}
}

func truncate(s string) string {
	if len(s) > maxTextLen {
		return s[:maxTextLen]
	}
	return s
}
