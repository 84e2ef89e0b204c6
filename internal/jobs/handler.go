package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// TransferInitiator charges the saving of a stored roundup. final marks the
// last attempt, after which a failed charge settles the record as failed.
type TransferInitiator interface {
	InitiateTransfer(ctx context.Context, transactionID string, final bool) error
}

// NewTransferHandler returns the JobHandler that runs TransferJobs.
func NewTransferHandler(initiator TransferInitiator, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		transferJob, ok := job.(*TransferJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", transferJob.JobID).
			Str("transaction_id", transferJob.TransactionID).
			Int("retry", transferJob.RetryCount).
			Msg("Processing transfer job")

		if err := initiator.InitiateTransfer(ctx, transferJob.TransactionID, transferJob.FinalAttempt()); err != nil {
			log.Error().
				Err(err).
				Str("job_id", transferJob.JobID).
				Str("transaction_id", transferJob.TransactionID).
				Bool("final", transferJob.FinalAttempt()).
				Msg("Transfer job failed")
			return err
		}
		return nil
	}
}
