package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igevents/pkg/config"
	"igevents/pkg/ui"
)

const defaultConfigPath = ".igevents.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igevents configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (IGEVENTS_*, plus APIFY_TOKEN, MISTRAL_API_KEY,
    DATABASE_URL, GOOGLE_MAPS_API_KEY and friends)
  - .env and ~/.igevents.env files
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default value",
	Long: `Write the default configuration as YAML to --config, or to
./.igevents.yaml when no path is given. Secrets are best kept in the
environment or a .env file rather than in this file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. API keys, tokens and DSNs are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Put APIFY_TOKEN, MISTRAL_API_KEY and DATABASE_URL in your environment or .env")
	fmt.Println("2. Run 'igevents auth login' to store a fallback Instagram session")
	fmt.Println("3. Run 'igevents config validate'")
	fmt.Println("4. Start collecting with 'igevents scrape <username>'")
	return nil
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}

// redacted returns a copy of cfg that is safe to print.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Apify.Token = maskSecret(c.Apify.Token)
	c.Inference.APIKey = maskSecret(c.Inference.APIKey)
	c.Geocoder.APIKey = maskSecret(c.Geocoder.APIKey)
	c.Database.PostgresDSN = maskSecret(c.Database.PostgresDSN)
	c.Database.MySQLDSN = maskSecret(c.Database.MySQLDSN)
	return c
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	display := redacted(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	if configFile != "" {
		fmt.Printf("\nConfiguration file: %s\n", configFile)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Apify.Token == "" {
		warnings = append(warnings, "no Apify token, only the session tier will be used")
	}
	if cfg.Inference.APIKey == "" {
		warnings = append(warnings, "no inference API key, captions are parsed with regular expressions and posters are not read")
	}
	if cfg.Database.PostgresDSN == "" {
		warnings = append(warnings, "no database URL, results are only kept for the current process")
	}
	if cfg.Geocoder.APIKey == "" {
		warnings = append(warnings, "no geocoder key, saved events get no coordinates")
	}
	if cfg.Logging.File != "" {
		if _, err := os.Stat(cfg.Logging.File); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("log file is not accessible: %v", err))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Pipeline.BaseDirectory)
	fmt.Printf("  Default limit: %d posts\n", cfg.Pipeline.DefaultLimit)
	fmt.Printf("  Auto save: %t\n", cfg.Pipeline.AutoSave)
	fmt.Printf("  Inference: %s (min interval %s)\n", cfg.Inference.Provider, cfg.Inference.MinInterval)
	fmt.Printf("  Circuit breaker: %d failures, %s cooldown\n", cfg.Breaker.FailThreshold, cfg.Breaker.Cooldown)
	fmt.Printf("  Events driver: %s\n", cfg.Database.EventsDriver)
	fmt.Printf("  Task store: %s\n", cfg.Tasks.Backend)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
