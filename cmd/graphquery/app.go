package graphquery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/loader"
	"github.com/soundprediction/graphquery/pkg/logger"
	"github.com/soundprediction/graphquery/pkg/nlp"
	"github.com/soundprediction/graphquery/pkg/persist"
	"github.com/soundprediction/graphquery/pkg/search"
	"github.com/soundprediction/graphquery/pkg/telemetry"
	"github.com/soundprediction/graphquery/pkg/types"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.ParquetHandler
	stack     *nlp.Stack
}

// newApp builds the logger, teeing error records into parquet telemetry when enabled.
func newApp(cfg *config.Config, stderr io.Writer) *app {
	opts := &slog.HandlerOptions{Level: logger.ParseLevel(cfg.Log.Level)}
	var handler slog.Handler = logger.NewColorHandler(stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(stderr, opts)
	}

	a := &app{cfg: cfg}
	if cfg.Telemetry.Enabled && cfg.Telemetry.ParquetPath != "" {
		ph, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: failed to initialize error tracking: %v\n", err)
		} else {
			a.telemetry = ph
			handler = ph
		}
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)
	return a
}

// loadIndex reads the index tables from the configured output directory.
func (a *app) loadIndex(ctx context.Context) (*types.Tables, error) {
	dir := a.cfg.Project.InputPath()
	tables, err := loader.Load(ctx, dir, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load index from %s: %w", dir, err)
	}
	return tables, nil
}

// engine builds the LLM client stack and the search engine on top of it.
func (a *app) engine() (*search.Engine, error) {
	stack, err := nlp.Build(a.cfg, nlp.Deps{Logger: a.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.stack = stack
	a.logger.Debug("LLM client ready",
		"provider", a.cfg.NLP.Provider,
		"model", a.cfg.NLP.Model,
		"cache", a.cfg.Cache.Enabled,
		"circuit_breaker", a.cfg.CircuitBreaker.Enabled,
		"rate_limit", a.cfg.RateLimit.Enabled)
	return search.NewEngine(stack, search.OptionsFrom(a.cfg.Search), a.logger), nil
}

// persister creates the result writer under the queries directory.
func (a *app) persister(console io.Writer) (*persist.Persister, error) {
	return persist.New(a.cfg.Project.QueriesPath(),
		persist.WithConsole(console),
		persist.WithLogger(a.logger))
}

// logUsage reports token totals per mode.
func (a *app) logUsage() {
	if a.stack == nil || a.stack.Tracker == nil {
		return
	}
	for mode, usage := range a.stack.Tracker.Totals() {
		a.logger.Info("Token usage",
			"mode", mode,
			"prompt_tokens", usage.PromptTokens,
			"completion_tokens", usage.CompletionTokens,
			"total_tokens", usage.TotalTokens)
	}
}

// close releases the client stack and flushes telemetry.
func (a *app) close() {
	if a.stack != nil {
		if err := a.stack.Close(); err != nil {
			a.logger.Warn("Failed to close LLM client", "error", err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to flush telemetry: %v\n", err)
		}
	}
}
