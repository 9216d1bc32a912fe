package search

import (
	"context"
	"fmt"

	"github.com/soundprediction/graphquery/pkg/prompts"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// BasicSearch answers from the text units most similar to the query.
// Context: "sources" (id, text).
func (e *Engine) BasicSearch(ctx context.Context, req BasicSearchRequest) (*types.RetrievalResult, error) {
	if err := validate(req.Query, 0); err != nil {
		return nil, err
	}
	if err := requireColumns("text_units", req.TextUnits, "text"); err != nil {
		return nil, err
	}

	docs := make([]string, req.TextUnits.Len())
	for i := range docs {
		docs[i] = req.TextUnits.String(i, "text")
	}
	scores, err := RankDocuments(req.Query, docs)
	if err != nil {
		return nil, fmt.Errorf("basic search: %w", err)
	}

	ranked := table.New([]string{"id", "text"}, nil)
	for _, row := range positive(scores, e.opts.TopKTextUnits) {
		ranked.Rows = append(ranked.Rows, []any{shortID(req.TextUnits, row), docs[row]})
	}
	sources, tokens := e.pack(ranked, e.opts.MaxContextTokens)

	e.logger.DebugContext(ctx, "Basic search context built",
		"candidates", ranked.Len(),
		"sources", sources.Len(),
		"context_tokens", tokens)

	result := &types.RetrievalResult{TokensUsed: &types.TokenUsage{}}
	result.Context.SetTable("sources", sources)
	if sources.Len() == 0 {
		result.Answer = prompts.NoDataAnswer
		return result, nil
	}

	messages := prompts.BasicSearch(req.Query, section("Sources", sources), DefaultResponseType)
	answer, err := e.chat(ctx, messages, result.TokensUsed)
	if err != nil {
		return nil, fmt.Errorf("basic search: %w", err)
	}
	result.Answer = answer
	return result, nil
}
