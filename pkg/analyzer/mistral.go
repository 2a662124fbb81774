package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"igevents/pkg/config"
	"igevents/pkg/dates"
	errs "igevents/pkg/errors"
	"igevents/pkg/logger"
	"igevents/pkg/models"
	"igevents/pkg/ratelimit"
	"igevents/pkg/textparse"
)

const (
	DefaultBaseURL   = "https://api.mistral.ai"
	DefaultOCRModel  = "mistral-ocr-latest"
	DefaultChatModel = "mistral-small-latest"
	DefaultMaxChars  = 3000
)

// MistralAnalyzer calls Mistral's OCR and chat completion endpoints. Every
// request passes through the shared gate first.
type MistralAnalyzer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	ocrModel   string
	chatModel  string
	maxChars   int
	gate       ratelimit.Limiter
	parser     *textparse.Parser
	now        func() time.Time
	logger     logger.Logger
	observer   Observer
}

type Option func(*MistralAnalyzer)

func WithHTTPClient(c *http.Client) Option {
	return func(a *MistralAnalyzer) { a.httpClient = c }
}

// WithClock sets the time used for year inference in the prompt and fallback parser.
func WithClock(now func() time.Time) Option {
	return func(a *MistralAnalyzer) { a.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(a *MistralAnalyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *MistralAnalyzer) { a.observer = o }
}

func NewMistral(cfg config.InferenceConfig, gate ratelimit.Limiter, opts ...Option) *MistralAnalyzer {
	a := &MistralAnalyzer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		apiKey:     cfg.APIKey,
		ocrModel:   orDefault(cfg.OCRModel, DefaultOCRModel),
		chatModel:  orDefault(cfg.ChatModel, DefaultChatModel),
		maxChars:   cfg.MaxChars,
		gate:       gate,
		now:        time.Now,
		logger:     logger.GetLogger(),
	}
	if a.maxChars <= 0 {
		a.maxChars = DefaultMaxChars
	}
	if a.gate == nil {
		a.gate = ratelimit.NewGate(time.Second)
	}
	for _, opt := range opts {
		opt(a)
	}
	a.parser = &textparse.Parser{Now: a.now}
	return a
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

type ocrResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// ExtractText returns the OCR text of the image, or "" on any failure.
func (a *MistralAnalyzer) ExtractText(ctx context.Context, imagePath string) string {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		a.logger.WithField("path", imagePath).Debug("Image not readable, skipping OCR")
		return ""
	}

	req := ocrRequest{
		Model: a.ocrModel,
		Document: ocrDocument{
			Type:     "image_url",
			ImageURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		},
	}

	var resp ocrResponse
	if err := a.call(ctx, "ocr", "/v1/ocr", req, &resp); err != nil {
		a.logger.WithError(err).WithField("path", imagePath).Warn("OCR failed")
		return ""
	}

	pages := make([]string, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, p.Markdown)
	}
	return strings.Join(pages, "\n")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// extraction mirrors the JSON object the model is asked to return.
type extraction struct {
	IsEventPoster bool     `json:"is_event_poster"`
	Dates         []string `json:"dates"`
	Time          string   `json:"time"`
	Venue         string   `json:"venue"`
	Location      string   `json:"location"`
	Country       string   `json:"country"`
	Artist        string   `json:"artist"`
	Title         string   `json:"title"`
}

// ParseInfo asks the chat model for structured fields. Empty text and every
// failure go to the regex parser instead.
func (a *MistralAnalyzer) ParseInfo(ctx context.Context, text string) models.Extraction {
	if strings.TrimSpace(text) == "" {
		return a.parser.Parse(text)
	}

	req := chatRequest{
		Model:          a.chatModel,
		Messages:       []chatMessage{{Role: "user", Content: buildPrompt(truncateRunes(text, a.maxChars), a.now())}},
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	if err := a.call(ctx, "chat", "/v1/chat/completions", req, &resp); err != nil {
		a.logger.WithError(err).Warn("LLM parse failed, falling back to regex")
		return a.parser.Parse(text)
	}
	if len(resp.Choices) == 0 {
		a.logger.Warn("LLM returned no choices, falling back to regex")
		return a.parser.Parse(text)
	}

	var raw extraction
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &raw); err != nil {
		a.logger.WithError(err).Warn("LLM returned malformed JSON, falling back to regex")
		return a.parser.Parse(text)
	}
	return normalise(raw, text)
}

func (a *MistralAnalyzer) call(ctx context.Context, name, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		took := time.Since(start)
		logger.LogInference(name, took, err)
		if a.observer != nil {
			a.observer.ObserveInference(name, took, err)
		}
	}()

	if err := a.gate.Wait(ctx); err != nil {
		return errs.Wrap(errs.KindCancelled, "waiting for inference rate limit", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Wrap(errs.KindParsing, "encoding request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, "inference request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, "reading inference response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.FromStatus(resp.StatusCode, preview(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.Wrap(errs.KindParsing, "decoding inference response", err)
	}
	return nil
}

var timeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

func normalise(raw extraction, text string) models.Extraction {
	out := models.Extraction{
		IsEventPoster: raw.IsEventPoster,
		Dates:         []string{},
		Venue:         strings.TrimSpace(raw.Venue),
		Location:      strings.TrimSpace(raw.Location),
		Country:       strings.ToUpper(strings.TrimSpace(raw.Country)),
		Artist:        strings.TrimSpace(raw.Artist),
		Title:         strings.TrimSpace(raw.Title),
		RawText:       text,
	}
	if len(out.Country) != 2 {
		out.Country = models.DefaultCountry
	}
	for _, d := range raw.Dates {
		if d = strings.TrimSpace(d); dates.Valid(d) {
			out.AddDate(d)
		}
	}
	if m := timeRe.FindStringSubmatch(strings.TrimSpace(raw.Time)); m != nil {
		var h, mm int
		fmt.Sscanf(m[1]+" "+m[2], "%d %d", &h, &mm)
		if h < 24 && mm < 60 {
			out.Time = fmt.Sprintf("%02d:%02d", h, mm)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func preview(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
