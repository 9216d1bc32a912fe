// Package persist writes search results into timestamped result folders.
//
// Every saved result gets its own folder named query_<YYYYMMDD_HHMMSS>_<mode>
// under the queries root. Folders are created exclusively and never reused:
// a second save in the same second gets a _2, _3, ... suffix.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// TimestampLayout formats the time part of a result folder name.
const TimestampLayout = "20060102_150405"

// maxSuffix bounds how many same-second folders a mode may get.
const maxSuffix = 1000

// ErrInvalidKey is returned when a context key cannot be used in a file name.
var ErrInvalidKey = errors.New("invalid context key: contains path traversal or invalid characters")

// SaveRequest is one mode's result and the graph tables written next to it.
type SaveRequest struct {
	Mode          types.Mode
	Query         string
	Answer        string
	Context       types.Context
	Entities      *table.Table
	Relationships *table.Table
}

// Persister saves results under a queries root.
type Persister struct {
	root    string
	now     func() time.Time
	console io.Writer
	logger  *slog.Logger

	mu sync.Mutex // guards console
}

// Option configures a Persister.
type Option func(*Persister)

// WithClock replaces time.Now for folder naming.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

// WithConsole sets where the "results: ..." line is printed.
func WithConsole(w io.Writer) Option {
	return func(p *Persister) { p.console = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) { p.logger = logger }
}

// New creates a persister writing under root, creating root if needed.
func New(root string, opts ...Option) (*Persister, error) {
	if root == "" {
		return nil, errors.New("queries root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queries directory: %w", err)
	}
	p := &Persister{
		root:    root,
		now:     time.Now,
		console: os.Stdout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Root returns the queries root.
func (p *Persister) Root() string {
	return p.root
}

// FolderName returns the result folder name for a mode saved at t.
func FolderName(mode types.Mode, t time.Time) string {
	return fmt.Sprintf("query_%s_%s", t.Format(TimestampLayout), mode)
}

// Save writes a result into a new folder and returns the folder name.
//
// The folder holds query.txt, final_answer.txt, context_<key>.csv and
// context_<key>.json for tabular context, context_<key>.json for any other
// context, and nodes/edges as CSV and JSON.
func (p *Persister) Save(ctx context.Context, req SaveRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Mode == "" {
		return "", errors.New("mode is required")
	}
	entries := req.Context.Entries()
	for _, e := range entries {
		if err := validateKey(e.Key); err != nil {
			return "", fmt.Errorf("%w: %q", err, e.Key)
		}
	}

	name, dir, err := p.createFolder(req.Mode)
	if err != nil {
		return "", err
	}

	if err := writeFile(dir, "query.txt", writeString(req.Query)); err != nil {
		return "", err
	}
	if err := writeFile(dir, "final_answer.txt", writeString(req.Answer)); err != nil {
		return "", err
	}

	for _, e := range entries {
		base := "context_" + e.Key
		switch v := e.Value.(type) {
		case types.TableValue:
			err = writeTable(dir, base, v.Table)
		case types.DocumentValue:
			err = writeFile(dir, base+".json", writeDocument(v.Value))
		default:
			err = fmt.Errorf("unsupported context value %T for key %q", e.Value, e.Key)
		}
		if err != nil {
			return "", err
		}
	}

	if err := writeTable(dir, "nodes", req.Entities); err != nil {
		return "", err
	}
	if err := writeTable(dir, "edges", req.Relationships); err != nil {
		return "", err
	}

	p.logger.DebugContext(ctx, "Result saved",
		"mode", req.Mode,
		"folder", name,
		"context_entries", len(entries))
	p.mu.Lock()
	fmt.Fprintf(p.console, "results: %s saved in %s\n", req.Mode, name)
	p.mu.Unlock()
	return name, nil
}

// createFolder makes a new result folder, adding a sequence suffix when the
// timestamped name is taken.
func (p *Persister) createFolder(mode types.Mode) (string, string, error) {
	base := FolderName(mode, p.now())
	for seq := 1; seq <= maxSuffix; seq++ {
		name := base
		if seq > 1 {
			name = fmt.Sprintf("%s_%d", base, seq)
		}
		dir := filepath.Join(p.root, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return name, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("failed to create result folder: %w", err)
		}
	}
	return "", "", fmt.Errorf("failed to create result folder: %s already used %d times", base, maxSuffix)
}

// validateKey checks that a context key is safe as part of a file name.
func validateKey(key string) error {
	if key == "" || key == "." || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, '\x00') {
		return ErrInvalidKey
	}
	return nil
}

// writeFile creates dir/name exclusively and fills it with write.
func writeFile(dir, name string, write func(io.Writer) error) (err error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", name, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

// writeTable writes base.csv and base.json. A nil table yields an empty CSV
// and an empty JSON array.
func writeTable(dir, base string, t *table.Table) error {
	if err := writeFile(dir, base+".csv", t.WriteCSV); err != nil {
		return err
	}
	return writeFile(dir, base+".json", t.WriteJSON)
}

// writeDocument encodes v with two space indentation. Values JSON cannot
// represent are written as their string form.
func writeDocument(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(encodable(v))
	}
}

// maxEncodeDepth bounds how deep encodable descends before stringifying.
const maxEncodeDepth = 64

// encodable returns v if it encodes as JSON. Otherwise maps, slices, arrays,
// structs and pointers are rebuilt member by member and only the members JSON
// rejects are replaced by their fmt.Sprint form.
func encodable(v any) any {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	return normalize(reflect.ValueOf(v), 0)
}

func normalize(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	if rv.CanInterface() {
		if _, err := json.Marshal(rv.Interface()); err == nil {
			return rv.Interface()
		}
	}
	if depth >= maxEncodeDepth {
		return sprint(rv)
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem(), depth+1)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = normalize(iter.Value(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i), depth+1)
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		normalizeStruct(rv, out, depth)
		return out
	}
	return sprint(rv)
}

// normalizeStruct copies the exported fields of rv into out under their JSON
// names, promoting untagged embedded structs the way encoding/json does.
func normalizeStruct(rv reflect.Value, out map[string]any, depth int) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			normalizeStruct(fv, out, depth+1)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if strings.Contains(","+opts+",", ",omitempty,") && fv.IsZero() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		out[name] = normalize(fv, depth+1)
	}
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return sprint(k)
}

func sprint(rv reflect.Value) string {
	if rv.CanInterface() {
		return fmt.Sprint(rv.Interface())
	}
	return rv.String()
}
