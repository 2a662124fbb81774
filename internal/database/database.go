// Package database manages the PostgreSQL connection pool and schema.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"igevents/pkg/config"
	"igevents/pkg/logger"
)

// NewPgxPool parses the DSN, applies pool tuning, checks the server is
// reachable and returns the pool with its cleanup function.
//
//	pool, cleanup, err := database.NewPgxPool(ctx, cfg.Database, log)
//	if err != nil {
//		return err
//	}
//	defer cleanup()
func NewPgxPool(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*pgxpool.Pool, func(), error) {
	if log == nil {
		log = logger.GetLogger()
	}
	dsn := cfg.PostgresDSN
	if dsn == "" {
		return nil, nil, fmt.Errorf("postgres DSN is required (set DATABASE_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolConfig.ConnConfig.Tracer = &queryTracer{log: log}

	// Transaction poolers such as PgBouncer and Neon's pooler reject prepared statements.
	if cfg.SimpleProtocol {
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := healthCheck(ctx, pool, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres health check failed: %w", err)
	}

	log.InfoWithFields("Postgres pool created", map[string]any{
		"dsn":             sanitizeDSN(dsn),
		"max_conns":       poolConfig.MaxConns,
		"min_conns":       poolConfig.MinConns,
		"simple_protocol": cfg.SimpleProtocol,
	})

	cleanup := func() {
		log.Info("Closing postgres pool")
		pool.Close()
	}
	return pool, cleanup, nil
}

func healthCheck(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var version string
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("version query failed: %w", err)
	}
	log.InfoWithFields("Database health check passed", map[string]any{"version": truncateVersion(version)})
	return nil
}

// sanitizeDSN masks the password of a URL-style DSN.
func sanitizeDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(parsed.User.Username(), "***")
	}
	return parsed.String()
}

// truncateVersion keeps "PostgreSQL 16.4" out of the full version banner.
func truncateVersion(version string) string {
	if idx := strings.Index(version, " on "); idx != -1 {
		version = version[:idx]
	}
	if idx := strings.Index(version, "("); idx != -1 {
		return strings.TrimSpace(version[:idx])
	}
	if len(version) > 100 {
		return version[:100] + "..."
	}
	return version
}

// queryTracer logs failed queries. SQL text is left out of the log.
type queryTracer struct {
	log logger.Logger
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return ctx
}

func (t *queryTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		t.log.WithError(data.Err).ErrorWithFields("Postgres query failed", map[string]any{
			"command_tag": data.CommandTag.String(),
		})
	}
}
