package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/habahaba/roundup-savings/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
	transaction_id, user_id, phone_number, kind,
	amount_spent, rounded_to, amount_saved, currency,
	rationale, source, status, reference, checkout_url,
	created_ts, updated_ts`

// Append inserts a record with DML INSERT; streamed rows could not be
// updated while they sit in the streaming buffer.
func (s *Store) Append(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	row := toTransactionRow(tx)

	sql := `INSERT INTO ` + s.table(transactionsTable) + ` (` + transactionColumns + `)
		VALUES (
			@transaction_id, @user_id, @phone_number, @kind,
			@amount_spent, @rounded_to, @amount_saved, @currency,
			@rationale, @source, @status, @reference, @checkout_url,
			@created_ts, @updated_ts
		)`

	_, err := s.runDML(ctx, "Append", sql, []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "phone_number", Value: row.PhoneNumber},
		{Name: "kind", Value: row.Kind},
		{Name: "amount_spent", Value: row.AmountSpent},
		{Name: "rounded_to", Value: row.RoundedTo},
		{Name: "amount_saved", Value: row.AmountSaved},
		{Name: "currency", Value: row.Currency},
		{Name: "rationale", Value: row.Rationale},
		{Name: "source", Value: row.Source},
		{Name: "status", Value: row.Status},
		{Name: "reference", Value: row.Reference},
		{Name: "checkout_url", Value: row.CheckoutURL},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	})
	return err
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Transaction, error) {
	rows, err := s.queryTransactions(ctx, "Get", `WHERE transaction_id = @value`, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(rows) == 0 {
		return domain.Transaction{}, fmt.Errorf("Get %s: %w", id, domain.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

// GetByReference returns the record carrying the provider reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	rows, err := s.queryTransactions(ctx, "GetByReference", `WHERE reference = @value`, reference)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(rows) == 0 {
		return domain.Transaction{}, fmt.Errorf("GetByReference %s: %w", reference, domain.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

// ListByUser returns the user's records oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := s.queryTransactions(ctx, "ListByUser", `WHERE user_id = @value ORDER BY created_ts, transaction_id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Update stores the status, reference and checkout URL of a pending record.
func (s *Store) Update(ctx context.Context, tx domain.Transaction) error {
	sql := `UPDATE ` + s.table(transactionsTable) + `
		SET status = @status,
		    reference = @reference,
		    checkout_url = @checkout_url,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
		  AND status = 'pending'`

	n, err := s.runDML(ctx, "Update", sql, []bigquery.QueryParameter{
		{Name: "transaction_id", Value: tx.ID},
		{Name: "status", Value: string(tx.Status)},
		{Name: "reference", Value: nullString(tx.Reference)},
		{Name: "checkout_url", Value: nullString(tx.CheckoutURL)},
		{Name: "updated_ts", Value: tx.UpdatedAt},
	})
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	current, err := s.Get(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return fmt.Errorf("Update %s: %w: record is %s", tx.ID, domain.ErrInvalidTransition, current.Status)
}

func (s *Store) queryTransactions(ctx context.Context, op, where string, value string) ([]*TransactionRow, error) {
	q := s.client.Query(`SELECT ` + transactionColumns + ` FROM ` + s.table(transactionsTable) + ` ` + where)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "value", Value: value},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
