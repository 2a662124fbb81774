package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"igevents/internal/server"
	"igevents/pkg/config"
	"igevents/pkg/tasks"
	"igevents/pkg/ui"
)

const shutdownTimeout = 15 * time.Second

var (
	serveAddr        string
	serveConcurrency int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scrapes in the background behind an HTTP API",
	Long: `Start the task API. Each POST /api/scrape starts a background run whose
progress can be polled at GET /api/task_status/{id}.

Routes:
  POST /api/scrape                 start a run
  GET  /api/task_status/{id}       poll a run
  GET  /api/tasks                  list runs
  POST /api/tasks/{id}/cancel      cancel a run
  GET  /healthz                    liveness and circuit state
  GET  /metrics                    Prometheus metrics

Task state lives in memory by default; set tasks.backend to "redis" to share
it between restarts.`,
	Example: `  igevents serve --addr :9090
  curl -X POST localhost:9090/api/scrape -d '{"username":"clubx","limit":5}' -H 'Content-Type: application/json'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().Int64Var(&serveConcurrency, "concurrency", 2, "number of runs executed at once")
}

// openTaskStore selects the task store backend from cfg.
func openTaskStore(ctx context.Context, cfg config.TasksConfig) (tasks.Store, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return tasks.NewRedisStore(client, cfg.Retention), func() { _ = client.Close() }, nil
	default:
		return tasks.NewMemoryStore(cfg.Capacity, cfg.Retention), func() {}, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if serveAddr != "" {
		flags["addr"] = serveAddr
	}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	store, closeStore, err := openTaskStore(ctx, cfg.Tasks)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := tasks.NewRunner(store, a.orch,
		tasks.WithConcurrency(serveConcurrency),
		tasks.WithRunnerLogger(a.log),
	)
	srv := server.New(runner, store,
		server.WithMetrics(a.metrics.Handler()),
		server.WithBreaker(a.breaker),
		server.WithLogger(a.log),
		server.WithAutoSave(cfg.Pipeline.AutoSave),
	)

	if !quiet {
		ui.PrintLogo()
		ui.PrintInfo("Listening", cfg.Server.Address)
		ui.PrintInfo("Task store", cfg.Tasks.Backend)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(cfg.Server.Address)
	})
	g.Go(func() error {
		return runner.PruneLoop(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("Runs did not stop before the deadline")
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
