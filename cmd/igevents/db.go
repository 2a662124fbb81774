package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"igevents/internal/database"
	"igevents/pkg/logger"
	"igevents/pkg/persistence"
	"igevents/pkg/ui"
)

var clearYes bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the results database",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded Postgres migrations. When events.driver is mysql the
events and venues tables are migrated there as well.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "List known venue names",
	Args:  cobra.NoArgs,
	RunE:  runVenues,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every scraped post",
	Long:  `Delete every row of the scraped posts table. Events and venues are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(migrateCmd)
	dbCmd.AddCommand(venuesCmd)
	dbCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

var errNoDatabase = errors.New("no database configured: set DATABASE_URL or database.postgres_dsn")

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Database.PostgresDSN == "" {
		return errNoDatabase
	}
	log := logger.GetLogger()

	pool, closePool, err := database.NewPgxPool(cmd.Context(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer closePool()

	applied, err := database.Migrate(cmd.Context(), pool, log)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		ui.PrintInfo("Postgres", "schema is up to date")
	}
	for _, v := range applied {
		ui.PrintSuccess("Applied migration " + v)
	}

	if cfg.Database.EventsDriver == "mysql" {
		db, err := persistence.OpenMySQL(cfg.Database, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := persistence.NewGormEvents(db).AutoMigrate(); err != nil {
			return fmt.Errorf("migrate mysql events: %w", err)
		}
		ui.PrintSuccess("MySQL events schema is up to date")
	}
	return nil
}

func runVenues(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Database.PostgresDSN == "" {
		return errNoDatabase
	}

	store, closeStore, err := persistence.Open(cmd.Context(), cfg.Database, logger.GetLogger())
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := store.ListKnownVenueNames(cmd.Context())
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Database.PostgresDSN == "" {
		return errNoDatabase
	}

	if !clearYes {
		fmt.Print("Delete ALL scraped posts? This cannot be undone! (yes/N): ")
		confirm, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return nil
		}
	}

	store, closeStore, err := persistence.Open(cmd.Context(), cfg.Database, logger.GetLogger())
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.ClearScrapedPosts(cmd.Context())
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Deleted %d scraped posts", n))
	return nil
}
