package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/pipeline"
)

var (
	parseProvider string
	parseImage    string
)

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Extract event fields from a caption or poster text",
	Long: `Run the analyzer on text read from a file or stdin and print the extracted
fields as JSON, together with the status the pipeline would give the post.

With --image the poster is run through OCR first and its text is appended.`,
	Example: `  echo "DJ NIGHT 12/25 @ Club X" | igevents parse
  igevents parse caption.txt --provider regex
  igevents parse --image poster.jpg`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseProvider, "provider", "", "inference provider (mistral, regex)")
	parseCmd.Flags().StringVar(&parseImage, "image", "", "poster image to OCR")
}

type parseOutput struct {
	models.Extraction
	Status pipeline.Status `json:"status"`
}

func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		if parseImage != "" && len(args) == 0 {
			return "", nil
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func runParse(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if parseProvider != "" {
		flags["provider"] = parseProvider
	}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	text, err := readInput(args)
	if err != nil {
		return err
	}

	a := newAnalyzer(cfg.Inference, nil, logger.GetLogger())
	if parseImage != "" {
		if ocr := a.ExtractText(cmd.Context(), parseImage); ocr != "" {
			text = strings.TrimSpace(text + "\n\n" + ocr)
		}
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to parse")
	}

	ex := a.ParseInfo(cmd.Context(), text)
	d := pipeline.Decide(ex.IsEventPoster, ex.Title != "", ex.Venue != "", len(ex.Dates) > 0, cfg.Pipeline.AutoSave)
	status := d.Status
	if d.Save {
		status = pipeline.StatusSaved
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(parseOutput{Extraction: ex, Status: status})
}
