// Package server exposes background pipeline runs over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"igevents/pkg/logger"
	"igevents/pkg/pipeline"
	"igevents/pkg/resilience"
	"igevents/pkg/tasks"
)

// Submitter starts and cancels runs, normally *tasks.Runner.
type Submitter interface {
	Submit(ctx context.Context, opts pipeline.Options) (*tasks.Task, error)
	Cancel(ctx context.Context, id string) error
}

type Server struct {
	app      *fiber.App
	runner   Submitter
	store    tasks.Store
	autoSave bool
	maxLimit int
	breaker  *resilience.Breaker
	log      logger.Logger
}

type Option func(*Server)

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.app.Get("/metrics", adaptor.HTTPHandler(h)) }
}

func WithLogger(l logger.Logger) Option { return func(s *Server) { s.log = l } }

// WithBreaker reports the cloud tier's circuit on /healthz.
func WithBreaker(b *resilience.Breaker) Option { return func(s *Server) { s.breaker = b } }

// WithAutoSave sets the default when a request omits auto_save.
func WithAutoSave(on bool) Option { return func(s *Server) { s.autoSave = on } }

func New(runner Submitter, store tasks.Store, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		store:    store,
		autoSave: true,
		maxLimit: 50,
		log:      logger.GetLogger(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "igevents",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLog)

	s.app.Get("/healthz", s.health)
	api := s.app.Group("/api")
	api.Post("/scrape", s.scrape)
	api.Get("/task_status/:id", s.taskStatus)
	api.Get("/tasks", s.listTasks)
	api.Post("/tasks/:id/cancel", s.cancelTask)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.log.WithField("address", addr).Info("HTTP server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.DebugWithFields("HTTP request", map[string]any{
		"method":   c.Method(),
		"path":     c.Path(),
		"status":   c.Response().StatusCode(),
		"duration": time.Since(start).String(),
	})
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok"}
	if s.breaker != nil {
		circuit := fiber.Map{
			"state":    s.breaker.State().String(),
			"failures": s.breaker.Failures(),
		}
		if at, open := s.breaker.ReopensAt(); open {
			circuit["reopens_at"] = at.UTC().Format(time.RFC3339)
		}
		body["breaker"] = circuit
	}
	return success(c, fiber.StatusOK, body)
}

type scrapeRequest struct {
	Username  string `json:"username"`
	Limit     int    `json:"limit"`
	VenueName string `json:"venue_name"`
	AutoSave  *bool  `json:"auto_save"`
}

func (s *Server) scrape(c *fiber.Ctx) error {
	var req scrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Username) == "" {
		return failure(c, fiber.StatusBadRequest, "username is required")
	}
	if req.Limit < 0 || req.Limit > s.maxLimit {
		return failure(c, fiber.StatusBadRequest, "limit must be between 0 and 50")
	}
	autoSave := s.autoSave
	if req.AutoSave != nil {
		autoSave = *req.AutoSave
	}

	task, err := s.runner.Submit(c.UserContext(), pipeline.Options{
		RawUsername:    req.Username,
		Limit:          req.Limit,
		KnownVenueName: strings.TrimSpace(req.VenueName),
		AutoSave:       autoSave,
	})
	switch {
	case errors.Is(err, tasks.ErrInvalidUsername):
		return failure(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrStoreFull):
		return failure(c, fiber.StatusServiceUnavailable, "too many tasks in progress")
	case err != nil:
		s.log.WithError(err).Error("Task submission failed")
		return failure(c, fiber.StatusInternalServerError, "failed to start task")
	}
	return success(c, fiber.StatusAccepted, fiber.Map{"task_id": task.ID, "status": task.Status})
}

func (s *Server) taskStatus(c *fiber.Ctx) error {
	task, err := s.store.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, tasks.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "task not found")
	}
	if err != nil {
		return failure(c, fiber.StatusInternalServerError, err.Error())
	}
	return success(c, fiber.StatusOK, task)
}

// taskSummary is a task without its log tail and result details.
type taskSummary struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	Status    tasks.Status `json:"status"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	list, err := s.store.List(c.UserContext())
	if err != nil {
		return failure(c, fiber.StatusInternalServerError, err.Error())
	}
	out := make([]taskSummary, 0, len(list))
	for _, t := range list {
		out = append(out, taskSummary{
			ID:        t.ID,
			Username:  t.Username,
			Status:    t.Status,
			Progress:  t.Progress,
			Message:   t.Message,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	}
	return success(c, fiber.StatusOK, out)
}

func (s *Server) cancelTask(c *fiber.Ctx) error {
	id := c.Params("id")
	err := s.runner.Cancel(c.UserContext(), id)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		return failure(c, fiber.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrNotActive):
		return failure(c, fiber.StatusConflict, "task already finished")
	case err != nil:
		return failure(c, fiber.StatusInternalServerError, err.Error())
	}
	return success(c, fiber.StatusAccepted, fiber.Map{"task_id": id, "status": "cancelling"})
}
