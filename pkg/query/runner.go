// Package query runs one natural-language query through several search modes
// and saves each mode's result.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/persist"
	"github.com/soundprediction/graphquery/pkg/search"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/soundprediction/graphquery/pkg/utils"
)

// ErrNoIndex is returned for a mode when the plan carries no tables.
var ErrNoIndex = errors.New("no index loaded")

// Saver persists one mode's result and returns where it went.
type Saver interface {
	Save(ctx context.Context, req persist.SaveRequest) (string, error)
}

// Plan describes one run.
type Plan struct {
	Query  string
	Tables *types.Tables

	// Modes run in order. Empty means basic, local, global.
	Modes []types.Mode

	CommunityLevel            int
	ResponseType              string
	DynamicCommunitySelection bool

	// Concurrency above 1 runs modes in parallel. Outcomes keep plan order.
	Concurrency int
	// Timeout bounds each mode. Zero means no limit.
	Timeout time.Duration
}

// PlanFrom builds a plan from configuration.
func PlanFrom(cfg config.QueryConfig, tables *types.Tables) (Plan, error) {
	modes, err := types.ParseModes(cfg.Modes)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Query:                     cfg.Text,
		Tables:                    tables,
		Modes:                     modes,
		CommunityLevel:            cfg.CommunityLevel,
		ResponseType:              cfg.ResponseType,
		DynamicCommunitySelection: cfg.DynamicCommunitySelection,
		Concurrency:               cfg.Concurrency,
		Timeout:                   time.Duration(cfg.Timeout) * time.Second,
	}, nil
}

// Runner executes plans. Each mode is isolated: an error or panic in one
// mode is reported and the remaining modes still run.
type Runner struct {
	searcher search.Searcher
	saver    Saver
	console  io.Writer
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConsole sets where progress lines are printed.
func WithConsole(w io.Writer) Option {
	return func(r *Runner) { r.console = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner. A nil saver skips persistence.
func NewRunner(searcher search.Searcher, saver Saver, opts ...Option) *Runner {
	r := &Runner{
		searcher: searcher,
		saver:    saver,
		console:  os.Stdout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.console = &lockedWriter{w: r.console}
	return r
}

// lockedWriter serializes console lines from concurrently running modes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Run executes every mode of the plan and returns one outcome per mode,
// in plan order.
func (r *Runner) Run(ctx context.Context, plan Plan) []types.Outcome {
	modes := plan.Modes
	if len(modes) == 0 {
		modes = types.DefaultModes()
	}

	runID := uuid.New().String()
	ctx = context.WithValue(ctx, types.ContextKeyRunID, runID)
	ctx = context.WithValue(ctx, types.ContextKeyQuery, plan.Query)

	fmt.Fprintf(r.console, "running query: '%s'\n", plan.Query)
	r.logger.InfoContext(ctx, "Starting query run",
		"run_id", runID,
		"modes", modes,
		"community_level", plan.CommunityLevel,
		"concurrency", plan.Concurrency)

	if plan.Concurrency <= 1 {
		outcomes := make([]types.Outcome, 0, len(modes))
		for _, mode := range modes {
			outcomes = append(outcomes, r.runMode(ctx, plan, mode))
		}
		return outcomes
	}

	fns := make([]func() (types.Outcome, error), len(modes))
	for i, mode := range modes {
		fns[i] = func() (types.Outcome, error) {
			return r.runMode(ctx, plan, mode), nil
		}
	}
	outcomes, errs := utils.SemaphoreGatherWithResults(ctx, plan.Concurrency, fns...)
	for i, err := range errs {
		// only set when the mode never started
		if err != nil {
			outcomes[i] = r.fail(ctx, types.Outcome{Mode: modes[i], Err: err})
		}
	}
	return outcomes
}

// runMode searches and saves one mode inside a failure boundary.
func (r *Runner) runMode(ctx context.Context, plan Plan, mode types.Mode) (out types.Outcome) {
	start := time.Now()
	out.Mode = mode
	ctx = context.WithValue(ctx, types.ContextKeyMode, mode)
	if plan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.Timeout)
		defer cancel()
	}

	defer func() {
		out.Duration = time.Since(start)
		if out.Err != nil {
			out = r.fail(ctx, out)
		}
	}()
	defer utils.RecoverWithCallback(func(err error) {
		out.Err = err
	})

	result, err := r.search(ctx, plan, mode)
	if err != nil {
		out.Err = err
		return out
	}
	out.Answer = result.Answer

	if r.saver != nil {
		folder, err := r.saver.Save(ctx, persist.SaveRequest{
			Mode:          mode,
			Query:         plan.Query,
			Answer:        result.Answer,
			Context:       result.Context,
			Entities:      plan.Tables.Entities,
			Relationships: plan.Tables.Relationships,
		})
		if err != nil {
			out.Err = fmt.Errorf("failed to save %s result: %w", mode, err)
			return out
		}
		out.Folder = folder
	}

	attrs := []any{"mode", mode, "folder", out.Folder, "duration", time.Since(start)}
	if result.TokensUsed != nil {
		attrs = append(attrs, "total_tokens", result.TokensUsed.TotalTokens)
	}
	r.logger.InfoContext(ctx, "Search completed", attrs...)
	return out
}

// fail reports a failed mode on the console and in the error log.
func (r *Runner) fail(ctx context.Context, out types.Outcome) types.Outcome {
	fmt.Fprintf(r.console, "%s search failed\n", out.Mode)
	r.logger.ErrorContext(ctx, "Search failed", "mode", out.Mode, "error", out.Err)
	return out
}

// search calls the searcher with the tables each mode needs.
func (r *Runner) search(ctx context.Context, plan Plan, mode types.Mode) (*types.RetrievalResult, error) {
	t := plan.Tables
	if t == nil {
		return nil, ErrNoIndex
	}

	var (
		result *types.RetrievalResult
		err    error
	)
	switch mode {
	case types.ModeBasic:
		result, err = r.searcher.BasicSearch(ctx, search.BasicSearchRequest{
			Query:     plan.Query,
			TextUnits: t.TextUnits,
		})
	case types.ModeLocal:
		result, err = r.searcher.LocalSearch(ctx, search.LocalSearchRequest{
			Query:            plan.Query,
			Entities:         t.Entities,
			Communities:      t.Communities,
			CommunityReports: t.CommunityReports,
			TextUnits:        t.TextUnits,
			Relationships:    t.Relationships,
			Covariates:       nil,
			CommunityLevel:   plan.CommunityLevel,
			ResponseType:     plan.ResponseType,
		})
	case types.ModeGlobal:
		result, err = r.searcher.GlobalSearch(ctx, search.GlobalSearchRequest{
			Query:                     plan.Query,
			Entities:                  t.Entities,
			Communities:               t.Communities,
			CommunityReports:          t.CommunityReports,
			CommunityLevel:            plan.CommunityLevel,
			DynamicCommunitySelection: plan.DynamicCommunitySelection,
			ResponseType:              plan.ResponseType,
		})
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownMode, mode)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%s search returned no result", mode)
	}
	return result, nil
}

// Summary prints one line per outcome.
func Summary(w io.Writer, outcomes []types.Outcome) {
	for _, o := range outcomes {
		if o.Succeeded() {
			where := o.Folder
			if where == "" {
				where = "not saved"
			}
			fmt.Fprintf(w, "%-6s ok      %-40s %s\n", o.Mode, where, o.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "%-6s failed  %s\n", o.Mode, firstLine(o.Err.Error()))
	}
}

// Failed counts the outcomes that did not succeed.
func Failed(outcomes []types.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
