package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/soundprediction/graphquery/pkg/prompts"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// LocalSearch answers from the neighbourhood of the entities the query is about.
// Context: "reports", "entities", "relationships", "claims" (only when
// covariates are supplied) and "sources".
func (e *Engine) LocalSearch(ctx context.Context, req LocalSearchRequest) (*types.RetrievalResult, error) {
	if err := validate(req.Query, req.CommunityLevel); err != nil {
		return nil, err
	}
	if err := requireColumns("entities", req.Entities, "id", "title", "description"); err != nil {
		return nil, err
	}
	if err := requireColumns("relationships", req.Relationships, "source", "target", "description"); err != nil {
		return nil, err
	}
	if err := requireColumns("text_units", req.TextUnits, "id", "text"); err != nil {
		return nil, err
	}

	selected, err := e.mapQueryToEntities(req.Query, req.Entities)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	budget := e.opts.MaxContextTokens
	communityBudget := int(float64(budget) * e.opts.CommunityProp)
	textBudget := int(float64(budget) * e.opts.TextUnitProp)
	localBudget := budget - communityBudget - textBudget

	reports, err := e.communityContext(req, selected, communityBudget)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	entities, used := e.pack(entityContext(req.Entities, selected), localBudget)
	localBudget -= used
	relationships, used := e.pack(e.relationshipContext(req, selected), localBudget)
	localBudget -= used

	sources, _ := e.pack(textUnitContext(req, selected), textBudget)

	result := &types.RetrievalResult{TokensUsed: &types.TokenUsage{}}
	result.Context.SetTable("reports", reports)
	result.Context.SetTable("entities", entities)
	result.Context.SetTable("relationships", relationships)

	sections := []string{
		section("Reports", reports),
		section("Entities", entities),
		section("Relationships", relationships),
	}
	if req.Covariates != nil {
		claims, _ := e.pack(claimContext(req, selected), localBudget)
		result.Context.SetTable("claims", claims)
		sections = append(sections, section("Claims", claims))
	}
	result.Context.SetTable("sources", sources)
	sections = append(sections, section("Sources", sources))

	e.logger.DebugContext(ctx, "Local search context built",
		"entities", entities.Len(),
		"relationships", relationships.Len(),
		"reports", reports.Len(),
		"sources", sources.Len())

	if len(selected) == 0 {
		result.Answer = prompts.NoDataAnswer
		return result, nil
	}

	messages := prompts.LocalSearch(req.Query, strings.Join(sections, "\n\n"), responseType(req.ResponseType))
	answer, err := e.chat(ctx, messages, result.TokensUsed)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// mapQueryToEntities ranks entities by fusing two signals: entities named in
// the query verbatim, and TF-IDF similarity of title and description.
func (e *Engine) mapQueryToEntities(query string, entities *table.Table) ([]int, error) {
	lowered := strings.ToLower(query)
	docs := make([]string, entities.Len())
	var mentioned []int
	for r := range docs {
		title := entities.String(r, "title")
		docs[r] = title + ". " + entities.String(r, "description")
		if title != "" && strings.Contains(lowered, strings.ToLower(title)) {
			mentioned = append(mentioned, r)
		}
	}

	scores, err := RankDocuments(query, docs)
	if err != nil {
		return nil, err
	}

	fused, _ := RRF([][]int{mentioned, positive(scores, 0)}, DefaultRankConstant)
	if k := e.opts.TopKEntities; k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func entityContext(entities *table.Table, selected []int) *table.Table {
	out := table.New([]string{"id", "entity", "description", "number of relationships"}, nil)
	for _, r := range selected {
		degree, _ := entities.Int(r, "degree")
		out.Rows = append(out.Rows, []any{shortID(entities, r), entities.String(r, "title"), entities.String(r, "description"), degree})
	}
	return out
}

// relationshipContext lists relationships between selected entities first,
// then those leaving the selection by descending combined degree and weight.
func (e *Engine) relationshipContext(req LocalSearchRequest, selected []int) *table.Table {
	titles := selectedTitles(req.Entities, selected)
	rels := req.Relationships

	var inside, outside []int
	for r := 0; r < rels.Len(); r++ {
		_, src := titles[strings.ToUpper(rels.String(r, "source"))]
		_, dst := titles[strings.ToUpper(rels.String(r, "target"))]
		switch {
		case src && dst:
			inside = append(inside, r)
		case src || dst:
			outside = append(outside, r)
		}
	}
	sort.SliceStable(outside, func(a, b int) bool {
		da, _ := rels.Int(outside[a], "combined_degree")
		db, _ := rels.Int(outside[b], "combined_degree")
		if da != db {
			return da > db
		}
		wa, _ := rels.Float(outside[a], "weight")
		wb, _ := rels.Float(outside[b], "weight")
		return wa > wb
	})

	rows := append(inside, outside...)
	if limit := e.opts.TopKRelationships * len(selected); limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := table.New([]string{"id", "source", "target", "description", "weight"}, nil)
	for _, r := range rows {
		weight, _ := rels.Float(r, "weight")
		out.Rows = append(out.Rows, []any{shortID(rels, r), rels.String(r, "source"), rels.String(r, "target"), rels.String(r, "description"), weight})
	}
	return out
}

// communityContext lists reports of communities at or below the requested
// level that contain selected entities, most matches first, then by rank.
func (e *Engine) communityContext(req LocalSearchRequest, selected []int, budget int) (*table.Table, error) {
	out := table.New([]string{"id", "title", "content"}, nil)
	if len(selected) == 0 || req.Communities.Len() == 0 || req.CommunityReports.Len() == 0 {
		return out, nil
	}
	if err := requireColumns("communities", req.Communities, "community", "level", "entity_ids"); err != nil {
		return nil, err
	}
	if err := requireColumns("community_reports", req.CommunityReports, "community", "full_content"); err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(selected))
	for _, r := range selected {
		ids[req.Entities.String(r, "id")] = struct{}{}
	}

	matches := make(map[int64]int)
	for r := 0; r < req.Communities.Len(); r++ {
		level, _ := req.Communities.Int(r, "level")
		if level > int64(req.CommunityLevel) {
			continue
		}
		community, _ := req.Communities.Int(r, "community")
		for _, id := range req.Communities.List(r, "entity_ids") {
			if _, ok := ids[id]; ok {
				matches[community]++
			}
		}
	}

	reports := req.CommunityReports
	var rows []int
	for r := 0; r < reports.Len(); r++ {
		community, _ := reports.Int(r, "community")
		if matches[community] > 0 {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ca, _ := reports.Int(rows[a], "community")
		cb, _ := reports.Int(rows[b], "community")
		if matches[ca] != matches[cb] {
			return matches[ca] > matches[cb]
		}
		ra, _ := reports.Float(rows[a], "rank")
		rb, _ := reports.Float(rows[b], "rank")
		return ra > rb
	})

	for _, r := range rows {
		out.Rows = append(out.Rows, []any{shortID(reports, r), reports.String(r, "title"), reports.String(r, "full_content")})
	}
	packed, _ := e.pack(out, budget)
	return packed, nil
}

// textUnitContext lists the source chunks of the selected entities, in entity order.
func textUnitContext(req LocalSearchRequest, selected []int) *table.Table {
	out := table.New([]string{"id", "text"}, nil)
	if !req.Entities.Has("text_unit_ids") {
		return out
	}
	byID := indexBy(req.TextUnits, "id")
	seen := make(map[int]bool)
	for _, r := range selected {
		for _, id := range req.Entities.List(r, "text_unit_ids") {
			row, ok := byID[id]
			if !ok || seen[row] {
				continue
			}
			seen[row] = true
			out.Rows = append(out.Rows, []any{shortID(req.TextUnits, row), req.TextUnits.String(row, "text")})
		}
	}
	return out
}

// claimContext lists covariates whose subject is a selected entity.
func claimContext(req LocalSearchRequest, selected []int) *table.Table {
	out := table.New([]string{"id", "entity", "object_id", "status", "description"}, nil)
	cov := req.Covariates
	if !cov.Has("subject_id") {
		return out
	}
	titles := selectedTitles(req.Entities, selected)
	for r := 0; r < cov.Len(); r++ {
		subject := cov.String(r, "subject_id")
		if _, ok := titles[strings.ToUpper(subject)]; !ok {
			continue
		}
		out.Rows = append(out.Rows, []any{shortID(cov, r), subject, cov.String(r, "object_id"), cov.String(r, "status"), cov.String(r, "description")})
	}
	return out
}

func selectedTitles(entities *table.Table, selected []int) map[string]struct{} {
	titles := make(map[string]struct{}, len(selected))
	for _, r := range selected {
		titles[strings.ToUpper(entities.String(r, "title"))] = struct{}{}
	}
	return titles
}
