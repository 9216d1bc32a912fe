package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/query"
	"github.com/soundprediction/graphquery/pkg/search"
	"github.com/soundprediction/graphquery/pkg/server/dto"
	"github.com/soundprediction/graphquery/pkg/types"
)

// QueryHandler runs queries against the loaded index.
type QueryHandler struct {
	searcher search.Searcher
	saver    query.Saver
	tables   *types.Tables
	defaults config.QueryConfig
	logger   *slog.Logger
}

// NewQueryHandler creates a new query handler. A nil saver disables persistence.
func NewQueryHandler(searcher search.Searcher, saver query.Saver, tables *types.Tables, defaults config.QueryConfig, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{
		searcher: searcher,
		saver:    saver,
		tables:   tables,
		defaults: defaults,
		logger:   logger,
	}
}

// Query handles POST /query
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	if h.tables == nil || h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "not_ready", Message: query.ErrNoIndex.Error(), Code: http.StatusServiceUnavailable})
		return
	}

	cfg := h.defaults
	cfg.Text = req.Query
	if len(req.Modes) > 0 {
		cfg.Modes = req.Modes
	}
	if req.CommunityLevel != nil {
		cfg.CommunityLevel = *req.CommunityLevel
	}
	if req.ResponseType != "" {
		cfg.ResponseType = req.ResponseType
	}
	if req.DynamicCommunitySelection != nil {
		cfg.DynamicCommunitySelection = *req.DynamicCommunitySelection
	}

	plan, err := query.PlanFrom(cfg, h.tables)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrUnknownMode) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{Error: "invalid_request", Message: err.Error(), Code: status})
		return
	}

	var saver query.Saver
	if req.Persist == nil || *req.Persist {
		saver = h.saver
	}
	runner := query.NewRunner(h.searcher, saver, query.WithConsole(io.Discard), query.WithLogger(h.logger))
	outcomes := runner.Run(c.Request.Context(), plan)

	resp := dto.QueryResponse{Query: req.Query, Failed: query.Failed(outcomes)}
	for _, o := range outcomes {
		r := dto.ModeResult{
			Mode:       string(o.Mode),
			Success:    o.Succeeded(),
			Answer:     o.Answer,
			Folder:     o.Folder,
			DurationMs: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		resp.Results = append(resp.Results, r)
	}
	c.JSON(http.StatusOK, resp)
}
