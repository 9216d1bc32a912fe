package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Table is an in-memory tabular dataset with ordered columns.
//
// Cells hold nil, bool, int64, float64, string, []any or map[string]any.
// A Table is treated as immutable once built: helpers that narrow it
// return a new Table sharing the underlying row slices.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New creates a table from column names and rows.
// Rows shorter than the column list are padded with nil.
func New(columns []string, rows [][]any) *Table {
	for i, row := range rows {
		if len(row) < len(columns) {
			padded := make([]any, len(columns))
			copy(padded, row)
			rows[i] = padded
		}
	}
	return &Table{Columns: columns, Rows: rows}
}

// FromRecords builds a table from a list of records, keeping the given column order.
func FromRecords(columns []string, records []map[string]any) *Table {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = rec[col]
		}
		rows = append(rows, row)
	}
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries every named column.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			return false
		}
	}
	return true
}

// Value returns the raw cell at (row, column) or nil when the column is absent.
func (t *Table) Value(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= t.Len() || idx >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][idx]
}

// String returns the cell rendered as text. Missing and nil cells yield "".
func (t *Table) String(row int, column string) string {
	return FormatCell(t.Value(row, column))
}

// Int returns the cell as an integer. Strings are parsed; anything else yields (0, false).
func (t *Table) Int(row int, column string) (int64, bool) {
	switch v := t.Value(row, column).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Float returns the cell as a float.
func (t *Table) Float(row int, column string) (float64, bool) {
	switch v := t.Value(row, column).(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// List returns the cell as a list of strings.
// Scalar cells become a one element list; nil becomes an empty list.
func (t *Table) List(row int, column string) []string {
	switch v := t.Value(row, column).(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, FormatCell(item))
		}
		return out
	case []string:
		return v
	default:
		return []string{FormatCell(v)}
	}
}

// Select returns a table holding the given rows, in the given order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{Columns: t.columns(), Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		if r >= 0 && r < t.Len() {
			out.Rows = append(out.Rows, t.Rows[r])
		}
	}
	return out
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := &Table{Columns: t.columns()}
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			out.Rows = append(out.Rows, t.Rows[i])
		}
	}
	return out
}

// Project returns a table holding only the named columns. Unknown columns are filled with nil.
func (t *Table) Project(columns ...string) *Table {
	out := &Table{Columns: columns, Rows: make([][]any, 0, t.Len())}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.ColumnIndex(c)
	}
	for r := 0; r < t.Len(); r++ {
		row := make([]any, len(columns))
		for i, j := range idx {
			if j >= 0 && j < len(t.Rows[r]) {
				row[i] = t.Rows[r][j]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Records returns the rows as maps keyed by column name.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(t.Rows[r]) {
				rec[c] = t.Rows[r][i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) columns() []string {
	if t == nil {
		return nil
	}
	return t.Columns
}

// WriteCSV writes a header row followed by one line per row, without an index column.
func (t *Table) WriteCSV(w io.Writer) error {
	return t.WriteDelimited(w, ',')
}

// WriteDelimited is WriteCSV with a custom field separator.
// Prompts render context tables pipe-delimited.
func (t *Table) WriteDelimited(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if cols := t.columns(); len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	record := make([]string, len(t.columns()))
	for r := 0; r < t.Len(); r++ {
		for i := range record {
			var cell any
			if i < len(t.Rows[r]) {
				cell = t.Rows[r][i]
			}
			record[i] = FormatCell(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", r, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the table as an array of records with two space indentation.
// Record keys follow column order.
func (t *Table) WriteJSON(w io.Writer) error {
	data, err := t.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("failed to indent table json: %w", err)
	}
	_, err = w.Write(out.Bytes())
	return err
}

// MarshalJSON encodes the table as an array of records with keys in column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for r := 0; r < t.Len(); r++ {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range t.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := marshalNoEscape(col)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')

			var cell any
			if i < len(t.Rows[r]) {
				cell = t.Rows[r][i]
			}
			val, err := marshalNoEscape(jsonCell(cell))
			if err != nil {
				return nil, fmt.Errorf("failed to encode row %d column %q: %w", r, col, err)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// FormatCell renders a cell for CSV output and text prompts.
// NaN and infinities render empty, matching the null WriteJSON emits.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		return strconv.FormatBool(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case int:
		return strconv.Itoa(c)
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return ""
		}
		return strconv.FormatFloat(c, 'g', -1, 64)
	case float32:
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return ""
		}
		return strconv.FormatFloat(float64(c), 'g', -1, 32)
	case []byte:
		return string(c)
	case []any, []string, map[string]any:
		b, err := marshalNoEscape(jsonCell(c))
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(b)
	default:
		return fmt.Sprint(c)
	}
}

// jsonCell replaces values encoding/json rejects (NaN, Inf) with nil.
func jsonCell(v any) any {
	switch c := v.(type) {
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return nil
		}
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			out[i] = jsonCell(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[k] = jsonCell(item)
		}
		return out
	}
	return v
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
