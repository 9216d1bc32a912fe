package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/soundprediction/graphquery/pkg/prompts"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/soundprediction/graphquery/pkg/utils"
)

// GlobalSearch answers by map-reduce over community reports.
// Context: "reports" (id, title, content, rank).
func (e *Engine) GlobalSearch(ctx context.Context, req GlobalSearchRequest) (*types.RetrievalResult, error) {
	if err := validate(req.Query, req.CommunityLevel); err != nil {
		return nil, err
	}
	if err := requireColumns("community_reports", req.CommunityReports, "community", "level", "full_content"); err != nil {
		return nil, err
	}

	result := &types.RetrievalResult{TokensUsed: &types.TokenUsage{}}
	h := newHierarchy(req.CommunityReports, req.Communities)

	var candidates []int
	if req.DynamicCommunitySelection {
		candidates = e.selectDynamic(ctx, req, h, result.TokensUsed)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("global search: %w", err)
		}
		if len(candidates) == 0 {
			e.logger.WarnContext(ctx, "No community rated relevant, falling back to static selection")
		}
	}
	if len(candidates) == 0 {
		candidates = selectStatic(req)
	}

	reports := req.CommunityReports
	sort.SliceStable(candidates, func(a, b int) bool {
		ra, _ := reports.Float(candidates[a], "rank")
		rb, _ := reports.Float(candidates[b], "rank")
		return ra > rb
	})
	selected := table.New([]string{"id", "title", "content", "rank"}, nil)
	for _, r := range candidates {
		rank, _ := reports.Float(r, "rank")
		selected.Rows = append(selected.Rows, []any{shortID(reports, r), reports.String(r, "title"), reports.String(r, "full_content"), rank})
	}
	result.Context.SetTable("reports", selected)

	if selected.Len() == 0 {
		result.Answer = prompts.NoDataAnswer
		return result, nil
	}

	points, err := e.mapReports(ctx, req.Query, selected, result.TokensUsed)
	if err != nil {
		return nil, fmt.Errorf("global search: %w", err)
	}
	if len(points) == 0 {
		result.Answer = prompts.NoDataAnswer
		return result, nil
	}

	messages := prompts.GlobalReduce(req.Query, e.reduceContext(points), responseType(req.ResponseType))
	answer, err := e.chat(ctx, messages, result.TokensUsed)
	if err != nil {
		return nil, fmt.Errorf("global search: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// analystPoint is a key point tagged with the map batch that produced it.
type analystPoint struct {
	analyst int
	prompts.KeyPoint
}

// mapReports asks for key points from each batch of reports concurrently.
// A failed batch is skipped; the step fails only when every batch fails.
func (e *Engine) mapReports(ctx context.Context, query string, reports *table.Table, usage *types.TokenUsage) ([]analystPoint, error) {
	batches := e.batch(reports, e.opts.MapBatchTokens)

	usages := make([]types.TokenUsage, len(batches))
	fns := make([]func() (*prompts.MapResponse, error), len(batches))
	for i, b := range batches {
		fns[i] = func() (*prompts.MapResponse, error) {
			var resp prompts.MapResponse
			if err := e.chatJSON(ctx, prompts.GlobalMap(query, section("Reports", b)), &resp, &usages[i]); err != nil {
				return nil, err
			}
			return &resp, nil
		}
	}
	responses, errs := utils.SemaphoreGatherWithResults(ctx, e.opts.MapConcurrency, fns...)

	var points []analystPoint
	failed := 0
	for i, resp := range responses {
		usage.Add(&usages[i])
		if errs[i] != nil {
			failed++
			e.logger.WarnContext(ctx, "Global search map batch failed", "batch", i, "error", errs[i])
			continue
		}
		for _, p := range resp.Points {
			if p.Score > 0 && strings.TrimSpace(p.Description) != "" {
				points = append(points, analystPoint{analyst: i + 1, KeyPoint: p})
			}
		}
	}
	if failed == len(batches) {
		return nil, fmt.Errorf("map step failed: %w", errors.Join(errs...))
	}

	sort.SliceStable(points, func(a, b int) bool {
		return points[a].Score > points[b].Score
	})
	return points, nil
}

// batch splits reports into consecutive tables each within budget tokens.
// A report larger than the budget gets a batch of its own.
func (e *Engine) batch(reports *table.Table, budget int) []*table.Table {
	var batches []*table.Table
	current := &table.Table{Columns: reports.Columns}
	used := 0
	for r := 0; r < reports.Len(); r++ {
		cost := e.counter.CountTokens(reports.String(r, "title") + " " + reports.String(r, "content"))
		if current.Len() > 0 && used+cost > budget {
			batches = append(batches, current)
			current = &table.Table{Columns: reports.Columns}
			used = 0
		}
		current.Rows = append(current.Rows, reports.Rows[r])
		used += cost
	}
	if current.Len() > 0 {
		batches = append(batches, current)
	}
	return batches
}

// reduceContext renders the strongest points until the reduce budget is spent.
func (e *Engine) reduceContext(points []analystPoint) string {
	var b strings.Builder
	used := 0
	for _, p := range points {
		text := fmt.Sprintf("----Analyst %d----\nImportance Score: %d\n%s\n\n", p.analyst, p.Score, p.Description)
		cost := e.counter.CountTokens(text)
		if used > 0 && used+cost > e.opts.ReduceMaxTokens {
			break
		}
		b.WriteString(text)
		used += cost
	}
	return strings.TrimRight(b.String(), "\n")
}
