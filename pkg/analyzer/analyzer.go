// Package analyzer turns poster images and captions into structured event data.
package analyzer

import (
	"context"
	"strings"
	"time"

	"igevents/pkg/config"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/ratelimit"
	"igevents/pkg/textparse"
)

// Analyzer extracts text from images and structured facts from text.
// Neither method fails: errors degrade to empty text or to the regex parser.
type Analyzer interface {
	ExtractText(ctx context.Context, imagePath string) string
	ParseInfo(ctx context.Context, text string) models.Extraction
}

// Observer receives the latency and outcome of each inference call.
type Observer interface {
	ObserveInference(call string, took time.Duration, err error)
}

// RegexAnalyzer never calls out. ExtractText is always empty and ParseInfo
// runs the text parser.
type RegexAnalyzer struct {
	Parser *textparse.Parser
}

func NewRegexAnalyzer(p *textparse.Parser) *RegexAnalyzer {
	if p == nil {
		p = textparse.New()
	}
	return &RegexAnalyzer{Parser: p}
}

func (a *RegexAnalyzer) ExtractText(context.Context, string) string { return "" }

func (a *RegexAnalyzer) ParseInfo(_ context.Context, text string) models.Extraction {
	return a.Parser.Parse(text)
}

// New selects an implementation from configuration. The Mistral analyzer is
// used when the provider is "mistral" and an API key is present.
func New(cfg config.InferenceConfig, gate ratelimit.Limiter, log logger.Logger, opts ...Option) Analyzer {
	if strings.EqualFold(cfg.Provider, "regex") || cfg.APIKey == "" {
		if log != nil {
			log.Info("Inference disabled, using regex analyzer")
		}
		return NewRegexAnalyzer(nil)
	}
	return NewMistral(cfg, gate, append([]Option{WithLogger(log)}, opts...)...)
}
