package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphquery/pkg/types"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests
type HealthHandler struct {
	tables  *types.Tables
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(tables *types.Tables) *HealthHandler {
	return &HealthHandler{
		tables:  tables,
		started: time.Now(),
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "graphquery",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready. The server is ready once the index is loaded.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ready",
		"service":   "graphquery",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	}

	if h.tables == nil {
		response["status"] = "not_ready"
		response["checks"] = gin.H{"index": gin.H{"status": "unhealthy", "error": "index not loaded"}}
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response["checks"] = gin.H{"index": gin.H{
		"status":            "healthy",
		"text_units":        h.tables.TextUnits.Len(),
		"entities":          h.tables.Entities.Len(),
		"relationships":     h.tables.Relationships.Len(),
		"communities":       h.tables.Communities.Len(),
		"community_reports": h.tables.CommunityReports.Len(),
	}}
	c.JSON(http.StatusOK, response)
}

// DetailedHealthCheck handles GET /health/detailed
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := "healthy"
	code := http.StatusOK
	if h.tables == nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "graphquery",
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
			"go_version": GoVersion,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"system": gin.H{
			"memory_usage": fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
			"goroutines":   runtime.NumGoroutine(),
			"gc_cycles":    m.NumGC,
		},
	})
}
