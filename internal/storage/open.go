// Package storage selects the transaction store configured by STORE_DRIVER.
package storage

import (
	"context"
	"fmt"

	"github.com/habahaba/roundup-savings/internal/advisor"
	"github.com/habahaba/roundup-savings/internal/config"
	infraBQ "github.com/habahaba/roundup-savings/internal/infra/bigquery"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/habahaba/roundup-savings/internal/storage/memory"
	"github.com/habahaba/roundup-savings/internal/storage/postgres"
)

// Backend is an opened store. AdvisorSink is set only for drivers that keep
// the advisor audit trail.
type Backend struct {
	Store       savings.Store
	AdvisorSink advisor.OutputSink
	Driver      string

	close func() error
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory, "":
		return &Backend{Store: memory.NewStore(), Driver: config.StoreMemory}, nil

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("storage.Open: %w", err)
		}
		store := postgres.NewStore(db)
		return &Backend{Store: store, Driver: cfg.StoreDriver, close: store.Close}, nil

	case config.StoreBigQuery:
		store, err := infraBQ.NewStore(ctx, cfg.GCPProject, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("storage.Open: %w", err)
		}
		return &Backend{Store: store, AdvisorSink: store, Driver: cfg.StoreDriver, close: store.Close}, nil
	}
	return nil, fmt.Errorf("storage.Open: unknown driver %q", cfg.StoreDriver)
}
