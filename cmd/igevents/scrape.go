package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"igevents/pkg/logger"
	"igevents/pkg/pipeline"
	"igevents/pkg/ui"
	"igevents/pkg/ui/tui"
)

var (
	// Scrape command flags
	scrapeLimit    int
	scrapeVenue    string
	scrapeOutput   string
	scrapeAccount  string
	scrapeProvider string
	scrapeNoSave   bool
	useTUI         bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <username|profile-url>",
	Short: "Collect events from an Instagram account",
	Long: `Run the full pipeline for one account: fetch its most recent posts,
extract text from captions and posters, decide which posts announce events
and store them.

Posts are fetched with the cloud actor when an Apify token is configured,
falling back to the logged-in web session ('igevents auth login').

Every run writes its images, OCR sidecars and a results.csv under
<output>/<YYYY-MM-DD>/<username>/.`,
	Example: `  # Scrape the three most recent posts
  igevents scrape clubx

  # Profile URLs work too
  igevents scrape https://www.instagram.com/clubx/

  # Every post of this account is at the same venue
  igevents scrape clubx --venue "Club X" --limit 10

  # Review only, nothing is saved as an event
  igevents scrape clubx --no-save

  # Live dashboard
  igevents scrape clubx --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().IntVarP(&scrapeLimit, "limit", "n", 0, "number of recent posts to process (default from config)")
	scrapeCmd.Flags().StringVar(&scrapeVenue, "venue", "", "venue every post of this account belongs to")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "base output directory")
	scrapeCmd.Flags().StringVarP(&scrapeAccount, "account", "a", "", "stored Instagram session to use for the fallback tier")
	scrapeCmd.Flags().StringVar(&scrapeProvider, "provider", "", "inference provider (mistral, regex)")
	scrapeCmd.Flags().BoolVar(&scrapeNoSave, "no-save", false, "mark events for review instead of saving them")
	scrapeCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
}

func runScrape(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if scrapeOutput != "" {
		flags["output"] = scrapeOutput
	}
	if scrapeLimit > 0 {
		flags["limit"] = scrapeLimit
	}
	if scrapeAccount != "" {
		flags["account"] = scrapeAccount
	}
	if scrapeProvider != "" {
		flags["provider"] = scrapeProvider
	}
	if scrapeNoSave {
		flags["auto-save"] = false
	}
	// Console logs would tear the dashboard.
	if useTUI && !verbose && !cmd.Flags().Changed("log-level") {
		flags["log-level"] = "error"
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := pipeline.Options{
		RawUsername:    args[0],
		Limit:          cfg.Pipeline.DefaultLimit,
		KnownVenueName: scrapeVenue,
		AutoSave:       cfg.Pipeline.AutoSave,
	}
	log := logger.GetLogger()
	log.WithFields(map[string]any{
		"target":    opts.RawUsername,
		"limit":     opts.Limit,
		"auto_save": opts.AutoSave,
	}).Info("Starting scrape")

	var res *pipeline.Result
	if useTUI {
		res, err = runWithDashboard(cmd.Context(), a.orch, opts)
	} else {
		res, err = runWithConsole(cmd.Context(), a.orch, opts)
	}

	ui.NewNotifier(cfg.Notifications).RunFinished(res, err)
	if err != nil {
		log.WithError(err).WithField("target", opts.RawUsername).Error("Scrape failed")
		return err
	}
	log.WithFields(map[string]any{
		"username":  res.Username,
		"scraped":   res.ScrapedCount,
		"saved":     res.SavedCount,
		"cancelled": res.Cancelled,
	}).Info("Scrape finished")
	return nil
}

func runWithConsole(ctx context.Context, orch *pipeline.Orchestrator, opts pipeline.Options) (*pipeline.Result, error) {
	var rep pipeline.Reporter = pipeline.ReporterFunc(func(pipeline.Progress) {})
	start := time.Now()
	if !quiet {
		ui.PrintLogo()
		ui.PrintInfo("Target Profile", opts.RawUsername)
		if opts.KnownVenueName != "" {
			ui.PrintInfo("Venue", opts.KnownVenueName)
		}
		rep = ui.NewConsoleReporter(os.Stdout, verbose)
	}

	res, err := orch.RunFullScrapeProcess(ctx, opts, rep)
	if err != nil {
		return res, err
	}
	if !quiet {
		ui.PrintSummary(os.Stdout, res, time.Since(start))
	}
	return res, nil
}

// runWithDashboard runs the pipeline in a goroutine while the dashboard owns
// the terminal. Quitting the dashboard early cancels the run.
func runWithDashboard(ctx context.Context, orch *pipeline.Orchestrator, opts pipeline.Options) (*pipeline.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res *pipeline.Result
		err error
	}
	dash := tui.NewDashboard(opts.RawUsername, cancel)
	start := time.Now()

	scrapeDone := make(chan outcome, 1)
	go func() {
		res, err := orch.RunFullScrapeProcess(runCtx, opts, dash)
		dash.Finish(res, err)
		scrapeDone <- outcome{res: res, err: err}
	}()

	if err := dash.Run(); err != nil {
		cancel()
		<-scrapeDone
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	cancel()
	out := <-scrapeDone
	if out.err == nil && out.res != nil && !quiet {
		ui.PrintSummary(os.Stdout, out.res, time.Since(start))
	}
	return out.res, out.err
}
