package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/savings"
	_ "github.com/lib/pq"
)

const selectColumns = `id, user_id, phone_number, kind, amount_spent, rounded_to, amount_saved,
	rationale, source, status, reference, checkout_url, created_at, updated_at`

// Store is a savings.Store on PostgreSQL. Amounts are NUMERIC columns
// scanned straight into decimal.Decimal.
type Store struct {
	db *sql.DB
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return db, nil
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts a new record.
func (s *Store) Append(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("postgres.Append: %w", err)
	}

	const query = `INSERT INTO savings_transactions (` + selectColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.PhoneNumber, string(tx.Kind),
		tx.AmountSpent, tx.RoundedTo, tx.AmountSaved,
		tx.Rationale, string(tx.Source), string(tx.Status),
		nullIfEmpty(tx.Reference), nullIfEmpty(tx.CheckoutURL), tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres.Append %s: %w", tx.ID, err)
	}
	return nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Transaction, error) {
	const query = `SELECT ` + selectColumns + ` FROM savings_transactions WHERE id = $1`
	tx, err := scanOne(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres.Get %s: %w", id, err)
	}
	return tx, nil
}

// GetByReference returns the record carrying the provider reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	const query = `SELECT ` + selectColumns + ` FROM savings_transactions WHERE reference = $1`
	tx, err := scanOne(s.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres.GetByReference %s: %w", reference, err)
	}
	return tx, nil
}

// ListByUser returns the user's records oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	const query = `SELECT ` + selectColumns + ` FROM savings_transactions
	WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListByUser %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.ListByUser %s: scan: %w", userID, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.ListByUser %s: %w", userID, err)
	}
	return out, nil
}

// Update stores the status, reference and checkout URL of a pending record.
// Settled records are never rewritten.
func (s *Store) Update(ctx context.Context, tx domain.Transaction) error {
	const query = `UPDATE savings_transactions
	SET status = $2, reference = $3, checkout_url = $4, updated_at = $5
	WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, tx.ID, string(tx.Status),
		nullIfEmpty(tx.Reference), nullIfEmpty(tx.CheckoutURL), tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres.Update %s: %w", tx.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres.Update %s: rows affected: %w", tx.ID, err)
	}
	if n == 1 {
		return nil
	}

	current, err := s.Get(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("postgres.Update: %w", err)
	}
	return fmt.Errorf("postgres.Update %s: %w: record is %s", tx.ID, domain.ErrInvalidTransition, current.Status)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (domain.Transaction, error) {
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, err
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var (
		tx                   domain.Transaction
		kind, source, status string
		reference, checkout  sql.NullString
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.PhoneNumber, &kind,
		&tx.AmountSpent, &tx.RoundedTo, &tx.AmountSaved,
		&tx.Rationale, &source, &status,
		&reference, &checkout, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Kind = domain.Kind(kind)
	tx.Source = domain.DecisionSource(source)
	tx.Status = domain.Status(status)
	tx.Reference = reference.String
	tx.CheckoutURL = checkout.String
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ savings.Store = (*Store)(nil)
