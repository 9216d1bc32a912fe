package search

import (
	"context"

	"github.com/soundprediction/graphquery/pkg/prompts"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/soundprediction/graphquery/pkg/utils"
)

// hierarchy indexes community reports by community and parent.
type hierarchy struct {
	reportRow map[int64]int     // community -> report row
	parent    map[int64]int64   // community -> parent community
	children  map[int64][]int64 // community -> child communities, in report order
	roots     []int64
}

// newHierarchy reads parent links from the reports, or from communities when
// the reports do not carry them.
func newHierarchy(reports, communities *table.Table) *hierarchy {
	h := &hierarchy{
		reportRow: make(map[int64]int),
		parent:    make(map[int64]int64),
		children:  make(map[int64][]int64),
	}

	source := reports
	if !reports.Has("parent") && communities.Has("community", "parent") {
		source = communities
	}
	for r := 0; r < source.Len(); r++ {
		community, ok := source.Int(r, "community")
		if !ok {
			continue
		}
		if parent, ok := source.Int(r, "parent"); ok {
			h.parent[community] = parent
		}
	}

	minLevel := int64(-1)
	for r := 0; r < reports.Len(); r++ {
		community, ok := reports.Int(r, "community")
		if !ok {
			continue
		}
		h.reportRow[community] = r
		if level, ok := reports.Int(r, "level"); ok && (minLevel < 0 || level < minLevel) {
			minLevel = level
		}
	}
	for r := 0; r < reports.Len(); r++ {
		community, _ := reports.Int(r, "community")
		level, _ := reports.Int(r, "level")
		parent, hasParent := h.parent[community]
		if _, parentReported := h.reportRow[parent]; hasParent && parentReported && parent != community {
			h.children[parent] = append(h.children[parent], community)
			continue
		}
		if level == minLevel {
			h.roots = append(h.roots, community)
		}
	}
	return h
}

// selectStatic picks, for every entity, the deepest community at or below the
// requested level that contains it, and returns the report rows of those
// communities. Without entity membership data every report at or below the
// level is used.
func selectStatic(req GlobalSearchRequest) []int {
	reports := req.CommunityReports
	level := int64(req.CommunityLevel)

	var known map[string]struct{}
	if req.Entities.Has("id") {
		known = make(map[string]struct{}, req.Entities.Len())
		for r := 0; r < req.Entities.Len(); r++ {
			known[req.Entities.String(r, "id")] = struct{}{}
		}
	}

	var wanted map[int64]bool
	if req.Communities.Has("community", "level", "entity_ids") {
		deepest := make(map[string]int64)
		for r := 0; r < req.Communities.Len(); r++ {
			l, _ := req.Communities.Int(r, "level")
			if l > level {
				continue
			}
			community, _ := req.Communities.Int(r, "community")
			for _, id := range req.Communities.List(r, "entity_ids") {
				if known != nil {
					if _, ok := known[id]; !ok {
						continue
					}
				}
				if current, ok := deepest[id]; !ok || community > current {
					deepest[id] = community
				}
			}
		}
		wanted = make(map[int64]bool, len(deepest))
		for _, community := range deepest {
			wanted[community] = true
		}
	}

	var rows []int
	for r := 0; r < reports.Len(); r++ {
		l, _ := reports.Int(r, "level")
		if l > level {
			continue
		}
		community, _ := reports.Int(r, "community")
		if wanted == nil || wanted[community] {
			rows = append(rows, r)
		}
	}
	return rows
}

// selectDynamic walks the hierarchy from the root communities, asking the
// model to rate each report. Children of relevant communities are rated next;
// a relevant child replaces its parent. Returns report rows in table order.
func (e *Engine) selectDynamic(ctx context.Context, req GlobalSearchRequest, h *hierarchy, usage *types.TokenUsage) []int {
	reports := req.CommunityReports
	selected := make(map[int64]bool)
	queue := h.roots

	for depth := 0; len(queue) > 0 && depth < e.opts.MaxSelectionLevels; depth++ {
		usages := make([]types.TokenUsage, len(queue))
		fns := make([]func() (int, error), len(queue))
		for i, community := range queue {
			row := h.reportRow[community]
			fns[i] = func() (int, error) {
				var rating prompts.CommunityRating
				messages := prompts.RateCommunity(req.Query, reports.String(row, "full_content"))
				if err := e.chatJSON(ctx, messages, &rating, &usages[i]); err != nil {
					return 0, err
				}
				return rating.Rating, nil
			}
		}
		ratings, errs := utils.SemaphoreGatherWithResults(ctx, e.opts.MapConcurrency, fns...)

		var next []int64
		for i, community := range queue {
			usage.Add(&usages[i])
			if errs[i] != nil {
				e.logger.WarnContext(ctx, "Community rating failed", "community", community, "error", errs[i])
				continue
			}
			if ratings[i] < e.opts.RatingThreshold {
				continue
			}
			selected[community] = true
			if parent, ok := h.parent[community]; ok && parent != community {
				delete(selected, parent)
			}
			for _, child := range h.children[community] {
				if l, _ := reports.Int(h.reportRow[child], "level"); l <= int64(req.CommunityLevel) {
					next = append(next, child)
				}
			}
		}
		e.logger.DebugContext(ctx, "Rated communities", "depth", depth, "rated", len(queue), "selected", len(selected))
		queue = next
	}

	var rows []int
	for r := 0; r < reports.Len(); r++ {
		community, _ := reports.Int(r, "community")
		if selected[community] {
			rows = append(rows, r)
		}
	}
	return rows
}
