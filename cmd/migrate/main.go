package main

import (
	"context"
	"flag"

	"cloud.google.com/go/bigquery"
	"github.com/habahaba/roundup-savings/internal/config"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/migrations"
	"github.com/habahaba/roundup-savings/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		dialect   = flag.String("dialect", defaultDialect(cfg), "Target database: bigquery or postgres")
		projectID = flag.String("project", cfg.GCPProject, "GCP project ID (bigquery)")
		datasetID = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID")
		dbURL     = flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection URL (postgres)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	log := logger.Component(logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat), "migrate")
	ctx := context.Background()

	var target migrations.Target
	switch *dialect {
	case migrations.DialectBigQuery:
		if *projectID == "" {
			log.Fatal().Msg("-project flag (or GCP_PROJECT) is required for bigquery")
		}
		client, err := bigquery.NewClient(ctx, *projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()
		target = migrations.NewBigQueryTarget(client, *projectID, *datasetID)
		log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	case migrations.DialectPostgres:
		if *dbURL == "" {
			log.Fatal().Msg("-database-url flag (or DATABASE_URL) is required for postgres")
		}
		db, err := postgres.Open(ctx, *dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer db.Close()
		target = migrations.NewPostgresTarget(db)
		log.Info().Msg("Connected to PostgreSQL")

	default:
		log.Fatal().Str("dialect", *dialect).Msg("Unknown dialect")
	}

	ms, err := migrations.Load(*dialect, map[string]string{
		"PROJECT_ID": *projectID,
		"DATASET_ID": *datasetID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	n, err := migrations.Run(ctx, target, ms, *appliedBy, log)
	if err != nil {
		log.Fatal().Err(err).Int("applied", n).Msg("Migration failed")
	}

	if n == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", n).Msg("Successfully applied migrations")
	}
}

func defaultDialect(cfg *config.Config) string {
	if cfg.StoreDriver == config.StorePostgres {
		return migrations.DialectPostgres
	}
	return migrations.DialectBigQuery
}
