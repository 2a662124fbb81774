package persistence

import (
	"context"
	"fmt"

	"igevents/internal/database"
	"igevents/pkg/config"
	"igevents/pkg/logger"
)

// Open builds the Gateway described by cfg and returns a cleanup func.
// Without a Postgres DSN the in-memory store is used.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (Gateway, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("No database configured, results are kept in memory only")
		return NewMemory(), func() {}, nil
	}

	pool, closePool, err := database.NewPgxPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if _, err := database.Migrate(ctx, pool, log); err != nil {
		closePool()
		return nil, nil, err
	}
	pg := NewPostgres(pool, log)

	if cfg.EventsDriver != "mysql" {
		return pg, closePool, nil
	}

	db, err := OpenMySQL(cfg, log)
	if err != nil {
		closePool()
		return nil, nil, err
	}
	events := NewGormEvents(db)
	if err := events.AutoMigrate(); err != nil {
		closePool()
		return nil, nil, fmt.Errorf("migrate mysql events: %w", err)
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		closePool()
	}
	log.Info("Events are stored in MySQL")
	return NewComposite(pg, events), cleanup, nil
}
