// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/archive"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/pipeline"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/writer"
)

// RequestIDHeader carries the per-request ID on every response.
const RequestIDHeader = "X-Request-ID"

// AnalyzeResponse is the JSON response from the /api/analyze endpoint.
type AnalyzeResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Version   string         `json:"version,omitempty"`
	Report    *writer.Report `json:"report,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Analyzer *pipeline.Analyzer
	Analysis analysis.Options
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   *slog.Logger
	Version  string
}

// NewApp builds a fiber app with the API routes registered.
func NewApp(h *Handler, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Use(requestID)
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/analyze", h.HandleAnalyze)
	if h.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals("requestId", id)
	c.Set(RequestIDHeader, id)
	return c.Next()
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
		"engine":  "fiber",
	})
}

// HandleAnalyze runs one uploaded artifact and returns the report.
func (h *Handler) HandleAnalyze(c *fiber.Ctx) (err error) {
	reqID, _ := c.Locals("requestId").(string)
	log := h.logger().With("request_id", reqID)

	// Recover from any panics to prevent server crash
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("analyze handler panicked", "panic", rec)
			err = h.writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("Internal server error (recovered from crash): %v", rec))
		}
	}()

	header, err := c.FormFile("file")
	if err != nil {
		return h.writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}

	kind := models.ContainerKind(strings.ToLower(c.FormValue("kind")))
	if kind != "" && !kind.Valid() {
		return h.writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Unknown kind %q. Use single, gzip, zip, or document.", kind))
	}

	analyzer := h.Analyzer
	if prior := c.FormValue("prior"); prior != "" {
		balances, err := pipeline.ReadPriorBalances(strings.NewReader(prior))
		if err != nil {
			return h.writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid prior balances: %v", err))
		}
		analyzer = analyzer.WithPriorBalances(balances)
	}

	file, err := header.Open()
	if err != nil {
		return h.writeError(c, fiber.StatusBadRequest, "Failed to read uploaded file.")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return h.writeError(c, fiber.StatusBadRequest, "Failed to read uploaded file.")
	}

	artifact := models.RawArtifact{
		Name: header.Filename,
		Data: data,
		Kind: kind,
		Hint: header.Header.Get("Content-Type"),
	}

	res, err := analyzer.Analyze(c.UserContext(), artifact)
	switch {
	case errors.Is(err, archive.ErrUnreadableArtifact):
		return h.writeError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return h.writeError(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return h.writeError(c, fiber.StatusInternalServerError, err.Error())
	}

	log.Info("artifact analyzed", "artifact", artifact.Name, "run_id", res.RunID, "records", len(res.Records))
	return c.JSON(AnalyzeResponse{
		Success:   true,
		RequestID: reqID,
		Version:   h.Version,
		Report: &writer.Report{
			Summary: analysis.Summarize(res, h.Analysis),
			Result:  res,
		},
	})
}

func (h *Handler) writeError(c *fiber.Ctx, status int, msg string) error {
	reqID, _ := c.Locals("requestId").(string)
	h.logger().Warn("request failed", "request_id", reqID, "status", status, "error", msg)
	return c.Status(status).JSON(AnalyzeResponse{
		Success:   false,
		Error:     msg,
		RequestID: reqID,
		Version:   h.Version,
	})
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
