package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/savings"
)

// Store is an in-memory savings.Store. Records are kept in insertion order
// and copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.Transaction
	byRef   map[string]string
	byUser  map[string][]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]domain.Transaction),
		byRef:   make(map[string]string),
		byUser:  make(map[string][]string),
	}
}

// Append adds a new record. IDs must be unique.
func (s *Store) Append(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("memory.Append: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[tx.ID]; exists {
		return fmt.Errorf("memory.Append: duplicate transaction id %s", tx.ID)
	}
	s.records[tx.ID] = tx
	s.byUser[tx.UserID] = append(s.byUser[tx.UserID], tx.ID)
	if tx.Reference != "" {
		s.byRef[tx.Reference] = tx.ID
	}
	return nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.records[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("memory.Get %s: %w", id, domain.ErrNotFound)
	}
	return tx, nil
}

// GetByReference returns the record carrying the provider reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[reference]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("memory.GetByReference %s: %w", reference, domain.ErrNotFound)
	}
	return s.records[id], nil
}

// ListByUser returns the user's records oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces a pending record. Only status, reference, checkout URL
// and the update time may change; settled records are never rewritten.
func (s *Store) Update(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[tx.ID]
	if !ok {
		return fmt.Errorf("memory.Update %s: %w", tx.ID, domain.ErrNotFound)
	}
	if prev.UserID != tx.UserID || !prev.AmountSaved.Equal(tx.AmountSaved) || !prev.AmountSpent.Equal(tx.AmountSpent) {
		return fmt.Errorf("memory.Update %s: amounts and owner are immutable", tx.ID)
	}
	if prev.Status.Terminal() {
		return fmt.Errorf("memory.Update %s: %w: record is %s", tx.ID, domain.ErrInvalidTransition, prev.Status)
	}

	if prev.Reference != "" && prev.Reference != tx.Reference {
		delete(s.byRef, prev.Reference)
	}
	if tx.Reference != "" {
		s.byRef[tx.Reference] = tx.ID
	}
	s.records[tx.ID] = tx
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Compile-time check: ensure Store implements savings.Store
var _ savings.Store = (*Store)(nil)
