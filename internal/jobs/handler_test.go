package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type MockInitiator struct {
	InitiateTransferFunc func(ctx context.Context, transactionID string, final bool) error
}

func (m *MockInitiator) InitiateTransfer(ctx context.Context, transactionID string, final bool) error {
	return m.InitiateTransferFunc(ctx, transactionID, final)
}

type otherJob struct{}

func (otherJob) GetID() string        { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestTransferHandler(t *testing.T) {
	tests := []struct {
		name      string
		job       *TransferJob
		err       error
		wantFinal bool
	}{
		{"first attempt", &TransferJob{TransactionID: "tx-1", MaxRetries: 3}, nil, false},
		{"last attempt", &TransferJob{TransactionID: "tx-1", RetryCount: 3, MaxRetries: 3}, nil, true},
		{"error propagates", &TransferJob{TransactionID: "tx-1", MaxRetries: 3}, errors.New("declined"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			var gotFinal bool
			h := NewTransferHandler(&MockInitiator{
				InitiateTransferFunc: func(ctx context.Context, id string, final bool) error {
					gotID, gotFinal = id, final
					return tt.err
				},
			}, zerolog.Nop())

			err := h(context.Background(), tt.job)
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if gotID != "tx-1" || gotFinal != tt.wantFinal {
				t.Errorf("InitiateTransfer(%q, %v), want final=%v", gotID, gotFinal, tt.wantFinal)
			}
		})
	}
}

func TestTransferHandler_RejectsOtherJobs(t *testing.T) {
	h := NewTransferHandler(&MockInitiator{}, zerolog.Nop())
	if err := h(context.Background(), otherJob{}); err == nil {
		t.Error("expected error for unexpected job type")
	}
}
