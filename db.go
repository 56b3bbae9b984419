package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dompet/pkg/config"
	"dompet/pkg/seed"
	"dompet/pkg/store"
	"dompet/pkg/store/memory"
)

// openStore builds the configured backend, migrating and seeding as asked.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, func(), error) {
	var (
		st      *store.Store
		closeFn = func() {}
	)
	switch cfg.StoreDriver {
	case "memory":
		_, st = memory.New()
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		db, err := store.Open(cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBAutoMigrate {
			if err := store.Migrate(db); err != nil {
				// permission problems on managed databases should not block startup
				logger.Warn("migration warning", "err", err)
			}
		}
		st = store.NewGorm(db)
		closeFn = func() { store.Close(db) }
	}

	if cfg.DBSeedDemo {
		if _, err := seed.Demo(ctx, st, time.Now(), logger); err != nil {
			logger.Warn("demo seed failed", "err", err)
		}
	}
	return st, closeFn, nil
}

func migrateOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.StoreDriver != "postgres" {
		return fmt.Errorf("migrate needs STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close(db)
	if err := store.Migrate(db); err != nil {
		return err
	}
	if cfg.DBSeedDemo {
		if _, err := seed.Demo(ctx, store.NewGorm(db), time.Now(), logger); err != nil {
			return fmt.Errorf("demo seed: %w", err)
		}
	}
	return nil
}
