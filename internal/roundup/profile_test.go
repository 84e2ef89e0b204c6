package roundup

import (
	"testing"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

func spend(amount, saved string) domain.Transaction {
	a, s := dec(amount), dec(saved)
	return domain.Transaction{
		Kind:        domain.KindRoundup,
		AmountSpent: a,
		AmountSaved: s,
		RoundedTo:   a.Add(s),
		Status:      domain.StatusCompleted,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputeProfile_EmptyHistory(t *testing.T) {
	p := ComputeProfile(nil, dec("233"))

	if !p.AverageTransaction.Equal(dec("233")) {
		t.Errorf("AverageTransaction = %s, want 233", p.AverageTransaction)
	}
	if !p.TotalSpent.IsZero() || !p.TotalSaved.IsZero() {
		t.Errorf("totals = %s/%s, want zero", p.TotalSpent, p.TotalSaved)
	}
	if !p.SavingsRatePercent.IsZero() {
		t.Errorf("SavingsRatePercent = %s, want 0", p.SavingsRatePercent)
	}
	if p.Count != 0 {
		t.Errorf("Count = %d, want 0", p.Count)
	}
}

func TestComputeProfile_Totals(t *testing.T) {
	history := []domain.Transaction{
		spend("233", "17"),
		spend("450", "50"),
		spend("89", "11"),
		spend("1250", "50"),
		spend("175", "25"),
	}

	p := ComputeProfile(history, dec("100"))

	if !p.TotalSpent.Equal(dec("2197")) {
		t.Errorf("TotalSpent = %s, want 2197", p.TotalSpent)
	}
	if !p.TotalSaved.Equal(dec("153")) {
		t.Errorf("TotalSaved = %s, want 153", p.TotalSaved)
	}
	if !p.AverageTransaction.Equal(dec("439.4")) {
		t.Errorf("AverageTransaction = %s, want 439.4", p.AverageTransaction)
	}
	if got := p.SavingsRateDisplay().StringFixed(1); got != "7.0" {
		t.Errorf("SavingsRateDisplay = %s, want 7.0", got)
	}
	// full precision is kept for policy comparisons
	if p.SavingsRatePercent.Equal(p.SavingsRateDisplay()) {
		t.Errorf("SavingsRatePercent %s was rounded", p.SavingsRatePercent)
	}
	if p.Count != len(history) {
		t.Errorf("Count = %d, want %d", p.Count, len(history))
	}
}

func TestComputeProfile_WithdrawalsReduceSavedButNotAverage(t *testing.T) {
	withdrawal := domain.NewWithdrawal("w1", "u1", "", dec("30"), "", time.Now())
	withdrawal.Status = domain.StatusCompleted

	history := []domain.Transaction{spend("200", "50"), spend("100", "0"), withdrawal}
	p := ComputeProfile(history, dec("10"))

	if !p.AverageTransaction.Equal(dec("150")) {
		t.Errorf("AverageTransaction = %s, want 150", p.AverageTransaction)
	}
	if !p.TotalSaved.Equal(dec("20")) {
		t.Errorf("TotalSaved = %s, want 20", p.TotalSaved)
	}
	if !p.TotalSpent.Equal(dec("300")) {
		t.Errorf("TotalSpent = %s, want 300", p.TotalSpent)
	}
}

func TestComputeProfile_OnlyWithdrawals(t *testing.T) {
	withdrawal := domain.NewWithdrawal("w1", "u1", "", dec("30"), "", time.Now())

	p := ComputeProfile([]domain.Transaction{withdrawal}, dec("42"))

	if !p.AverageTransaction.Equal(dec("42")) {
		t.Errorf("AverageTransaction = %s, want current amount 42", p.AverageTransaction)
	}
	if !p.SavingsRatePercent.IsZero() {
		t.Errorf("SavingsRatePercent = %s, want 0 when nothing spent", p.SavingsRatePercent)
	}
}

func TestComputeProfile_Idempotent(t *testing.T) {
	history := []domain.Transaction{spend("233", "17"), spend("89", "1"), spend("1901", "99")}
	snapshot := make([]domain.Transaction, len(history))
	copy(snapshot, history)

	first := ComputeProfile(history, dec("10"))
	second := ComputeProfile(history, dec("10"))

	pairs := [][2]decimal.Decimal{
		{first.AverageTransaction, second.AverageTransaction},
		{first.TotalSpent, second.TotalSpent},
		{first.TotalSaved, second.TotalSaved},
		{first.SavingsRatePercent, second.SavingsRatePercent},
	}
	for i, p := range pairs {
		if !p[0].Equal(p[1]) {
			t.Errorf("field %d differs between calls: %s vs %s", i, p[0], p[1])
		}
	}
	for i := range history {
		if history[i].ID != snapshot[i].ID || !history[i].AmountSaved.Equal(snapshot[i].AmountSaved) {
			t.Errorf("history[%d] was mutated", i)
		}
	}
}
