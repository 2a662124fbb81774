package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"igevents/pkg/config"
	"igevents/pkg/logger"
	"igevents/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igevents",
	Short: "Collect event listings from Instagram accounts",
	Long: `igevents reads recent posts from Instagram accounts, pulls the text out
of captions and posters, and turns event announcements into stored events.

Features:
  - Two scraping tiers: a cloud actor first, the logged-in web session as fallback
  - Circuit breaker over the cloud tier
  - Poster OCR and structured extraction, with a regex fallback
  - Venue matching, geocoding and image hosting for saved events
  - Background runs over an HTTP task API
  - Live terminal dashboard`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("Error", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igevents.yaml or ~/.config/igevents/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable run notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show every pipeline log line")

	rootCmd.SetVersionTemplate(`igevents {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags into flags, loads the configuration and
// installs the global logger.
func loadConfig(cmd *cobra.Command, flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Changed("notifications") {
		flags["notifications"] = notifications
	}
	switch {
	case quiet:
		flags["log-level"] = "error"
	case verbose:
		flags["log-level"] = "debug"
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
