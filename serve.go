package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/api"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/config"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/pipeline"
)

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, analyzer *pipeline.Analyzer, summaryOpts analysis.Options, reg *prometheus.Registry, log *slog.Logger) error {
	h := &api.Handler{
		Analyzer: analyzer,
		Analysis: summaryOpts,
		Gatherer: reg,
		Logger:   log.With("component", "api"),
		Version:  version,
	}
	app := api.NewApp(h, cfg.MaxUploadBytes)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ServerAddr)
		errCh <- app.Listen(cfg.ServerAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down server")
		return app.Shutdown()
	}
}
