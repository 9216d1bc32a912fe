package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/graphquery/pkg/types"
)

// LogRecord represents a single log entry for Parquet storage
type LogRecord struct {
	ID            string    `parquet:"id"`
	Timestamp     time.Time `parquet:"timestamp"`
	Level         string    `parquet:"level"`
	Message       string    `parquet:"message"`
	RunID         string    `parquet:"run_id"`
	Mode          string    `parquet:"mode"`
	Query         string    `parquet:"query"`
	RequestSource string    `parquet:"request_source"`
	SourceFile    string    `parquet:"source_file"`
	LineNumber    int       `parquet:"line_number"`
	Attributes    string    `parquet:"attributes"` // JSON string
}

// sink is the buffer shared by a handler and every handler derived from it.
type sink struct {
	outputDir string
	mu        sync.Mutex
	buffer    []LogRecord
	batchSize int
}

// ParquetHandler is a slog.Handler that writes error logs to Parquet files
type ParquetHandler struct {
	next  slog.Handler
	sink  *sink
	attrs []slog.Attr
}

// NewParquetHandler creates a new ParquetHandler
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	return &ParquetHandler{
		next: next,
		sink: &sink{
			outputDir: outputDir,
			batchSize: 100,
			buffer:    make([]LogRecord, 0, 100),
		},
	}, nil
}

// Enabled implements slog.Handler
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to next handler first
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	// Only errors are persisted
	if r.Level < slog.LevelError {
		return nil
	}

	record := LogRecord{
		ID:        uuid.New().String(),
		Timestamp: r.Time.UTC(),
		Level:     r.Level.String(),
		Message:   r.Message,
	}

	if v, ok := ctx.Value(types.ContextKeyRunID).(string); ok {
		record.RunID = v
	}
	if v, ok := ctx.Value(types.ContextKeyMode).(types.Mode); ok {
		record.Mode = string(v)
	}
	if v, ok := ctx.Value(types.ContextKeyQuery).(string); ok {
		record.Query = v
	}
	if v, ok := ctx.Value(types.ContextKeySource).(string); ok {
		record.RequestSource = v
	}

	attrs := make(map[string]interface{})
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok {
			attrs[a.Key] = err.Error()
		} else {
			attrs[a.Key] = a.Value.Any()
		}
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)
	record.Attributes = string(attrsJSON)

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		record.SourceFile = f.File
		record.LineNumber = f.Line
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()

	h.sink.buffer = append(h.sink.buffer, record)
	if len(h.sink.buffer) >= h.sink.batchSize {
		return h.sink.flush()
	}
	return nil
}

// Flush writes any buffered records. Call it before the process exits.
func (h *ParquetHandler) Flush() error {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.flush()
}

// Pending returns the number of buffered records.
func (h *ParquetHandler) Pending() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.buffer)
}

// flush writes the current buffer to a new Parquet file
// Caller must hold the lock
func (s *sink) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	now := time.Now()
	filename := fmt.Sprintf("execution_errors_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	path := filepath.Join(s.outputDir, filename)

	if err := parquet.WriteFile(path, s.buffer); err != nil {
		return fmt.Errorf("failed to write telemetry parquet file: %w", err)
	}

	s.buffer = s.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:  h.next.WithAttrs(attrs),
		sink:  h.sink,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:  h.next.WithGroup(name),
		sink:  h.sink,
		attrs: h.attrs,
	}
}
