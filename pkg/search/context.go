package search

import (
	"strings"

	"github.com/soundprediction/graphquery/pkg/table"
)

// DefaultResponseType is used when a request leaves the response type empty.
const DefaultResponseType = "Multiple Paragraphs"

func responseType(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultResponseType
	}
	return s
}

// section renders a titled, pipe-delimited table for a prompt.
func section(title string, t *table.Table) string {
	var b strings.Builder
	b.WriteString("-----" + title + "-----\n")
	_ = t.WriteDelimited(&b, '|') // writes to a strings.Builder cannot fail
	return b.String()
}

// pack keeps leading rows of t while the rendered table stays within budget
// tokens. It returns the packed table and the tokens it costs.
func (e *Engine) pack(t *table.Table, budget int) (*table.Table, int) {
	out := &table.Table{Columns: t.Columns}
	used := e.counter.CountTokens(strings.Join(t.Columns, "|"))
	if used > budget {
		return out, 0
	}
	cells := make([]string, len(t.Columns))
	for r := 0; r < t.Len(); r++ {
		for i := range cells {
			cells[i] = ""
			if i < len(t.Rows[r]) {
				cells[i] = table.FormatCell(t.Rows[r][i])
			}
		}
		cost := e.counter.CountTokens(strings.Join(cells, "|"))
		if used+cost > budget {
			break
		}
		used += cost
		out.Rows = append(out.Rows, t.Rows[r])
	}
	return out, used
}

// shortID is the human readable id of a row, falling back to its id.
func shortID(t *table.Table, row int) string {
	if t.Has("human_readable_id") {
		if v := t.String(row, "human_readable_id"); v != "" {
			return v
		}
	}
	return t.String(row, "id")
}

// indexBy maps the text of a column to the first row holding it.
func indexBy(t *table.Table, column string) map[string]int {
	idx := make(map[string]int, t.Len())
	for r := 0; r < t.Len(); r++ {
		key := t.String(r, column)
		if _, ok := idx[key]; !ok {
			idx[key] = r
		}
	}
	return idx
}
