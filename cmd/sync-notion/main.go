package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/habahaba/roundup-savings/internal/config"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/notionsync"
	"github.com/habahaba/roundup-savings/internal/storage"
)

// sync-notion backfills a user's savings history into the Notion journal.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize structured logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	// Parse CLI flags
	userID := flag.String("user-id", "", "User whose history to sync (required)")
	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if *userID == "" {
		log.Fatal().Msg("Error: --user-id is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	startDate, err := parseDate(*startDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}
	endDate, err := parseDate(*endDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}
	if !startDate.IsZero() && !endDate.IsZero() && endDate.Before(startDate) {
		log.Fatal().
			Time("start_date", startDate).
			Time("end_date", endDate).
			Msg("Error: end-date must be after start-date")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}
	defer backend.Close()

	history, err := backend.Store.ListByUser(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Str("user_id", *userID).Msg("Failed to load history")
	}
	txs := inRange(history, startDate, endDate)

	log.Info().
		Str("user_id", *userID).
		Int("transactions", len(txs)).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	syncer := notionsync.NewSyncer(notionsync.NewNotionClient(*notionToken), *notionDBID)
	res, err := syncer.SyncAll(ctx, txs, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d failed.\n", res.Created, res.Updated, res.Failed)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// inRange keeps records created on or after start and before the day after
// end. Zero bounds are open.
func inRange(txs []domain.Transaction, start, end time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !start.IsZero() && tx.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && !tx.CreatedAt.Before(end.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
