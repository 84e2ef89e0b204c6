package notionsync

import (
	"context"
	"fmt"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/jomei/notionapi"
)

// BatchSize is the number of records logged per progress line in SyncAll.
const BatchSize = 50

// Syncer mirrors savings records into one Notion database, one page per
// transaction, keyed by the "Transaction ID" title.
type Syncer struct {
	client     NotionService
	databaseID string
}

func NewSyncer(client NotionService, databaseID string) *Syncer {
	return &Syncer{client: client, databaseID: databaseID}
}

// HandleEvent upserts the record carried by a change event. It matches the
// change-feed consumer's handler signature.
func (s *Syncer) HandleEvent(ctx context.Context, event domain.TransactionEvent) error {
	_, err := s.Upsert(ctx, event.Transaction)
	return err
}

// Upsert creates the page for tx or updates the existing one, and returns
// whether a page was created.
func (s *Syncer) Upsert(ctx context.Context, tx domain.Transaction) (created bool, err error) {
	log := logger.FromContext(ctx)

	pageID, err := s.findPage(ctx, tx.ID)
	if err != nil {
		return false, fmt.Errorf("Upsert %s: %w", tx.ID, err)
	}

	props := TransactionToNotionProperties(tx)

	if pageID != "" {
		if _, err := s.client.UpdatePage(ctx, pageID, props); err != nil {
			return false, fmt.Errorf("Upsert %s: %w", tx.ID, err)
		}
		log.Debug().
			Str("transaction_id", tx.ID).
			Str("page_id", pageID).
			Str("status", string(tx.Status)).
			Msg("Updated Notion page")
		return false, nil
	}

	page, err := s.client.CreatePage(ctx, s.databaseID, props)
	if err != nil {
		return false, fmt.Errorf("Upsert %s: %w", tx.ID, err)
	}
	log.Debug().
		Str("transaction_id", tx.ID).
		Str("page_id", string(page.ID)).
		Msg("Created Notion page")
	return true, nil
}

// SyncResult counts the outcome of SyncAll.
type SyncResult struct {
	Created int
	Updated int
	Failed  int
}

// SyncAll upserts every record in txs. Individual failures are logged and
// counted; processing continues with the next record.
func (s *Syncer) SyncAll(ctx context.Context, txs []domain.Transaction, dryRun bool) (SyncResult, error) {
	log := logger.FromContext(ctx)
	var res SyncResult

	log.Info().
		Int("transaction_count", len(txs)).
		Bool("dry_run", dryRun).
		Msg("Starting savings sync to Notion")

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > 0 && i%BatchSize == 0 {
			log.Info().Int("processed", i).Int("total", len(txs)).Msg("Sync progress")
		}

		if dryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would upsert Notion page")
			continue
		}

		created, err := s.Upsert(ctx, tx)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to sync transaction")
			res.Failed++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("total", len(txs)).
		Msg("Savings sync completed")

	return res, nil
}

func (s *Syncer) findPage(ctx context.Context, transactionID string) (string, error) {
	resp, err := s.client.QueryDatabase(ctx, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropTransactionID,
			RichText: &notionapi.TextFilterCondition{
				Equals: transactionID,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", err
	}
	for _, page := range resp.Results {
		if extractTransactionID(page) == transactionID {
			return string(page.ID), nil
		}
	}
	return "", nil
}
