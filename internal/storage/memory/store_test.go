package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

func record(id, user string, at time.Time) domain.Transaction {
	d := domain.RoundupDecision{RoundTo: decimal.NewFromInt(250), Saved: decimal.NewFromInt(17), Reason: "r"}
	return domain.NewRoundup(id, user, "254700000000", decimal.NewFromInt(233), d, false, at)
}

func TestStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// appended out of order on purpose
	for _, tx := range []domain.Transaction{
		record("b", "u1", base.Add(time.Minute)),
		record("a", "u1", base),
		record("c", "u2", base),
	} {
		if err := s.Append(ctx, tx); err != nil {
			t.Fatalf("Append(%s) error = %v", tx.ID, err)
		}
	}

	got, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("ListByUser = %v, want [a b]", ids(got))
	}

	if err := s.Append(ctx, record("a", "u1", base)); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestStore_AppendRejectsInvalid(t *testing.T) {
	tx := record("x", "u1", time.Now())
	tx.RoundedTo = decimal.NewFromInt(1)

	if err := NewStore().Append(context.Background(), tx); err == nil {
		t.Error("expected invalid record to be rejected")
	}
}

func TestStore_UpdateAndReference(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := record("a", "u1", time.Now())
	if err := s.Append(ctx, tx); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetByReference(ctx, "ref-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByReference error = %v, want ErrNotFound", err)
	}

	tx = tx.WithReference("ref-1", time.Now())
	if err := s.Update(ctx, tx); err != nil {
		t.Fatalf("Update error = %v", err)
	}
	got, err := s.GetByReference(ctx, "ref-1")
	if err != nil || got.ID != "a" {
		t.Fatalf("GetByReference = %v, %v", got.ID, err)
	}

	tampered := got
	tampered.AmountSaved = decimal.NewFromInt(99)
	if err := s.Update(ctx, tampered); err == nil {
		t.Error("expected amount change to be rejected")
	}

	done, _ := got.Transition(domain.StatusCompleted, time.Now())
	if err := s.Update(ctx, done); err != nil {
		t.Fatalf("Update(completed) error = %v", err)
	}
	reopened := done
	reopened.Status = domain.StatusFailed
	if err := s.Update(ctx, reopened); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Update(settled) error = %v, want ErrInvalidTransition", err)
	}

	if err := s.Update(ctx, record("missing", "u1", time.Now())); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "tx-" + decimal.NewFromInt(int64(i)).String()
			if err := s.Append(ctx, record(id, "u1", now)); err != nil {
				t.Errorf("Append error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
