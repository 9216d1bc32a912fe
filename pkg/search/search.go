package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/nlp"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// Searcher runs the three retrieval modes.
type Searcher interface {
	BasicSearch(ctx context.Context, req BasicSearchRequest) (*types.RetrievalResult, error)
	LocalSearch(ctx context.Context, req LocalSearchRequest) (*types.RetrievalResult, error)
	GlobalSearch(ctx context.Context, req GlobalSearchRequest) (*types.RetrievalResult, error)
}

// BasicSearchRequest carries the inputs of a basic search.
// Answers use DefaultResponseType.
type BasicSearchRequest struct {
	Query     string
	TextUnits *table.Table
}

// LocalSearchRequest carries the inputs of a local search.
// Covariates may be nil.
type LocalSearchRequest struct {
	Query            string
	Entities         *table.Table
	Communities      *table.Table
	CommunityReports *table.Table
	TextUnits        *table.Table
	Relationships    *table.Table
	Covariates       *table.Table
	CommunityLevel   int
	ResponseType     string
}

// GlobalSearchRequest carries the inputs of a global search.
type GlobalSearchRequest struct {
	Query                     string
	Entities                  *table.Table
	Communities               *table.Table
	CommunityReports          *table.Table
	CommunityLevel            int
	DynamicCommunitySelection bool
	ResponseType              string
}

// Options tunes context building.
type Options struct {
	MaxContextTokens   int
	TopKTextUnits      int
	TopKEntities       int
	TopKRelationships  int
	CommunityProp      float64 // share of the local budget spent on community reports
	TextUnitProp       float64 // share of the local budget spent on source text
	MapBatchTokens     int
	MapConcurrency     int
	ReduceMaxTokens    int
	RatingThreshold    int
	MaxSelectionLevels int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxContextTokens:   12000,
		TopKTextUnits:      10,
		TopKEntities:       10,
		TopKRelationships:  10,
		CommunityProp:      0.15,
		TextUnitProp:       0.5,
		MapBatchTokens:     8000,
		MapConcurrency:     4,
		ReduceMaxTokens:    8000,
		RatingThreshold:    1,
		MaxSelectionLevels: 4,
	}
}

// OptionsFrom converts file configuration, keeping defaults for unset values.
func OptionsFrom(cfg config.SearchConfig) Options {
	opts := DefaultOptions()
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&opts.MaxContextTokens, cfg.MaxContextTokens)
	setInt(&opts.TopKTextUnits, cfg.TopKTextUnits)
	setInt(&opts.TopKEntities, cfg.TopKEntities)
	setInt(&opts.TopKRelationships, cfg.TopKRelationships)
	setInt(&opts.MapBatchTokens, cfg.MapBatchTokens)
	setInt(&opts.MapConcurrency, cfg.MapConcurrency)
	setInt(&opts.ReduceMaxTokens, cfg.ReduceMaxTokens)
	setInt(&opts.MaxSelectionLevels, cfg.MaxSelectionLevels)
	if cfg.RatingThreshold >= 0 {
		opts.RatingThreshold = cfg.RatingThreshold
	}
	if cfg.CommunityProp > 0 && cfg.TextUnitProp > 0 && cfg.CommunityProp+cfg.TextUnitProp <= 1 {
		opts.CommunityProp = cfg.CommunityProp
		opts.TextUnitProp = cfg.TextUnitProp
	}
	return opts
}

// Engine is the LLM-backed Searcher.
type Engine struct {
	client  nlp.Client
	opts    Options
	logger  *slog.Logger
	counter TokenCounter
}

var _ Searcher = (*Engine)(nil)

// NewEngine creates a search engine answering through client.
func NewEngine(client nlp.Client, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:  client,
		opts:    opts,
		logger:  logger,
		counter: NewSimpleTokenCounter(),
	}
}

// chat sends messages and folds the reported usage into usage.
func (e *Engine) chat(ctx context.Context, messages []types.Message, usage *types.TokenUsage) (string, error) {
	resp, err := e.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	usage.Add(resp.TokensUsed)
	if strings.TrimSpace(resp.Content) == "" {
		return "", nlp.ErrEmptyResponse
	}
	return resp.Content, nil
}

// chatJSON sends messages in structured mode and decodes the reply into target.
func (e *Engine) chatJSON(ctx context.Context, messages []types.Message, target any, usage *types.TokenUsage) error {
	resp, err := e.client.ChatWithStructuredOutput(ctx, messages, target)
	if err != nil {
		return err
	}
	usage.Add(resp.TokensUsed)
	return decodeJSON(resp.Content, target)
}

func validate(query string, level int) error {
	if strings.TrimSpace(query) == "" {
		return types.ErrEmptyQuery
	}
	if level < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidLevel, level)
	}
	return nil
}

func requireColumns(name string, t *table.Table, columns ...string) error {
	if t == nil {
		return fmt.Errorf("%s table is required", name)
	}
	if !t.Has(columns...) {
		return fmt.Errorf("%s table must have columns %s", name, strings.Join(columns, ", "))
	}
	return nil
}
