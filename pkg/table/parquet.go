package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// readBatchSize is the number of rows pulled from a row group per read.
const readBatchSize = 256

// field describes how the leaf columns of one top level parquet field are folded into a cell.
type field struct {
	name     string
	leaves   []int
	suffixes []string
	listDefs []int // definition level of each leaf's repeated node, 0 when not repeated
	repeated bool
}

// ReadParquetFile reads a parquet file into a Table.
//
// Top level fields become columns. Repeated leaves (plain repeated fields and
// LIST groups) become []any, nested groups become map[string]any keyed by the
// leaf path below the field, and null values become nil. A null list is nil,
// an empty list is []any{} and null list elements are kept as nil.
func ReadParquetFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}

	schema := pf.Schema()
	fields := groupFields(schema)

	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.name
	}

	t := &Table{Columns: columns, Rows: make([][]any, 0, int(pf.NumRows()))}
	buf := make([]parquet.Row, readBatchSize)

	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, readErr := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				t.Rows = append(t.Rows, convertRow(row, fields))
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				rows.Close()
				return nil, fmt.Errorf("failed to read rows from %s: %w", path, readErr)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to close row reader for %s: %w", path, err)
		}
	}

	return t, nil
}

func groupFields(schema *parquet.Schema) []field {
	var fields []field
	byName := make(map[string]int)

	for i, path := range schema.Columns() {
		if len(path) == 0 {
			continue
		}
		top := path[0]
		idx, ok := byName[top]
		if !ok {
			idx = len(fields)
			byName[top] = idx
			fields = append(fields, field{name: top})
		}
		fd := &fields[idx]
		fd.leaves = append(fd.leaves, i)
		fd.suffixes = append(fd.suffixes, leafSuffix(path[1:]))
		listDef := repeatedDefinitionLevel(schema, path)
		fd.listDefs = append(fd.listDefs, listDef)
		if listDef > 0 {
			fd.repeated = true
		}
	}
	return fields
}

// repeatedDefinitionLevel returns the definition level reached once the first
// repeated node on path holds an element, or 0 if no node on path repeats.
func repeatedDefinitionLevel(schema *parquet.Schema, path []string) int {
	var node parquet.Node = schema
	level := 0
	for _, name := range path {
		var next parquet.Node
		for _, f := range node.Fields() {
			if f.Name() == name {
				next = f
				break
			}
		}
		if next == nil {
			return 0
		}
		if next.Optional() || next.Repeated() {
			level++
		}
		if next.Repeated() {
			return level
		}
		node = next
	}
	return 0
}

// leafSuffix drops the list/element wrapper names that LIST groups add.
func leafSuffix(rest []string) string {
	parts := make([]string, 0, len(rest))
	for _, p := range rest {
		if p == "list" || p == "element" || p == "item" || p == "bag" || p == "array" {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ".")
}

func convertRow(row parquet.Row, fields []field) []any {
	out := make([]any, len(fields))
	perLeaf := make(map[int][]parquet.Value)

	for _, v := range row {
		perLeaf[v.Column()] = append(perLeaf[v.Column()], v)
	}

	for i, fd := range fields {
		if len(fd.leaves) == 1 && (fd.suffixes[0] == "" || fd.repeated) {
			out[i] = leafCell(perLeaf[fd.leaves[0]], fd.listDefs[0])
			continue
		}
		group := make(map[string]any, len(fd.leaves))
		allNull := true
		for j, leaf := range fd.leaves {
			cell := leafCell(perLeaf[leaf], fd.listDefs[j])
			if cell != nil {
				allNull = false
			}
			group[fd.suffixes[j]] = cell
		}
		if !allNull {
			out[i] = group
		}
	}
	return out
}

// leafCell converts the values of one leaf. listDef is the definition level
// at which a repeated leaf holds an element; below it the list is empty, and
// below that the list itself is null.
func leafCell(values []parquet.Value, listDef int) any {
	if listDef > 0 {
		if len(values) == 0 {
			return nil
		}
		if first := values[0]; first.IsNull() && first.DefinitionLevel() < listDef {
			if first.DefinitionLevel() < listDef-1 {
				return nil
			}
			return []any{}
		}
		list := make([]any, 0, len(values))
		for _, v := range values {
			if v.IsNull() {
				list = append(list, nil)
				continue
			}
			list = append(list, convertValue(v))
		}
		return list
	}
	if len(values) == 0 || values[0].IsNull() {
		return nil
	}
	return convertValue(values[0])
}

func convertValue(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Int96:
		return fmt.Sprint(v.Int96())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
