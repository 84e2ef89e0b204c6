package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/habahaba/roundup-savings/internal/config"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/events/kafka"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/notionsync"
)

// The worker mirrors the transaction change feed into the Notion journal.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	if !cfg.KafkaConfigured() {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}
	if !cfg.NotionConfigured() {
		log.Fatal().Msg("NOTION_TOKEN and NOTION_DATABASE_ID are required")
	}

	syncer := notionsync.NewSyncer(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger.Component(log, "consumer"))
	defer consumer.Close()

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group_id", cfg.KafkaGroupID).
		Msg("Starting worker service")

	handle := func(ctx context.Context, event domain.TransactionEvent) error {
		if err := syncer.HandleEvent(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event", string(event.Type)).
				Str("transaction_id", event.Transaction.ID).
				Msg("Notion sync failed")
			return err
		}
		log.Debug().
			Str("event", string(event.Type)).
			Str("transaction_id", event.Transaction.ID).
			Msg("Transaction mirrored to Notion")
		return nil
	}

	if err := consumer.Run(ctx, handle); err != nil {
		log.Fatal().Err(err).Msg("Consumer stopped with error")
	}

	log.Info().Msg("Worker service exited")
}
