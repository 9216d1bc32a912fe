package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	return New(
		[]string{"id", "title", "degree", "text_unit_ids"},
		[][]any{
			{"e1", "H2@HOME", int64(4), []any{"t1", "t2"}},
			{"e2", "ELECTROLYZER", int64(2), []any{"t2"}},
			{"e3", "FUEL CELL", nil, []any{}},
		},
	)
}

func TestTableAccessors(t *testing.T) {
	tbl := sampleTable()

	t.Run("Len and columns", func(t *testing.T) {
		assert.Equal(t, 3, tbl.Len())
		assert.Equal(t, 1, tbl.ColumnIndex("title"))
		assert.Equal(t, -1, tbl.ColumnIndex("missing"))
		assert.True(t, tbl.Has("id", "title"))
		assert.False(t, tbl.Has("id", "missing"))
	})

	t.Run("Typed cells", func(t *testing.T) {
		assert.Equal(t, "H2@HOME", tbl.String(0, "title"))
		n, ok := tbl.Int(0, "degree")
		require.True(t, ok)
		assert.Equal(t, int64(4), n)
		_, ok = tbl.Int(2, "degree")
		assert.False(t, ok)
		assert.Equal(t, []string{"t1", "t2"}, tbl.List(0, "text_unit_ids"))
		assert.Empty(t, tbl.List(2, "text_unit_ids"))
		assert.Equal(t, "", tbl.String(0, "missing"))
	})

	t.Run("Nil table is empty", func(t *testing.T) {
		var empty *Table
		assert.Equal(t, 0, empty.Len())
		assert.Nil(t, empty.Value(0, "id"))
	})

	t.Run("Select keeps order", func(t *testing.T) {
		sel := tbl.Select([]int{2, 0, 9})
		require.Equal(t, 2, sel.Len())
		assert.Equal(t, "e3", sel.String(0, "id"))
		assert.Equal(t, "e1", sel.String(1, "id"))
	})

	t.Run("Filter and project", func(t *testing.T) {
		filtered := tbl.Filter(func(r int) bool { return tbl.String(r, "id") != "e2" })
		assert.Equal(t, 2, filtered.Len())

		projected := tbl.Project("title", "nope")
		assert.Equal(t, []string{"title", "nope"}, projected.Columns)
		assert.Equal(t, "ELECTROLYZER", projected.String(1, "title"))
		assert.Nil(t, projected.Value(1, "nope"))
	})

	t.Run("Short rows are padded", func(t *testing.T) {
		padded := New([]string{"a", "b"}, [][]any{{"x"}})
		assert.Len(t, padded.Rows[0], 2)
	})
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTable().WriteCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"id", "title", "degree", "text_unit_ids"}, records[0])
	assert.Equal(t, []string{"e1", "H2@HOME", "4", `["t1","t2"]`}, records[1])
	assert.Equal(t, []string{"e3", "FUEL CELL", "", "[]"}, records[3])
}

func TestWriteCSVNonFiniteFloats(t *testing.T) {
	tbl := New([]string{"id", "rank", "weight"}, [][]any{
		{"r1", math.NaN(), float32(math.Inf(1))},
		{"r2", math.Inf(-1), float32(2.5)},
	})

	var csvBuf, jsonBuf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&csvBuf))
	require.NoError(t, tbl.WriteJSON(&jsonBuf))

	records, err := csv.NewReader(&csvBuf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"r1", "", ""}, records[1])
	assert.Equal(t, []string{"r2", "", "2.5"}, records[2])

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &rows))
	assert.Nil(t, rows[0]["rank"])
	assert.Nil(t, rows[0]["weight"])
	assert.Nil(t, rows[1]["rank"])
	assert.Equal(t, "", FormatCell(math.NaN()))
}

func TestWriteJSON(t *testing.T) {
	t.Run("Records keep column order and indentation", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, sampleTable().WriteJSON(&buf))

		out := buf.String()
		assert.Contains(t, out, "[\n  {\n    \"id\": \"e1\",\n    \"title\": \"H2@HOME\"")

		var records []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
		require.Len(t, records, 3)
		for _, rec := range records {
			assert.Len(t, rec, 4)
		}
		assert.Nil(t, records[2]["degree"])
	})

	t.Run("Empty table is an empty array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New([]string{"id"}, nil).WriteJSON(&buf))
		assert.Equal(t, "[]", buf.String())
	})

	t.Run("Non finite floats become null", func(t *testing.T) {
		var buf bytes.Buffer
		tbl := New([]string{"rank"}, [][]any{{math.NaN()}, {1.5}})
		require.NoError(t, tbl.WriteJSON(&buf))

		var records []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
		assert.Nil(t, records[0]["rank"])
		assert.Equal(t, 1.5, records[1]["rank"])
	})
}

type parquetEntity struct {
	ID          string   `parquet:"id"`
	Title       string   `parquet:"title"`
	Description *string  `parquet:"description,optional"`
	Degree      int32    `parquet:"degree"`
	Rank        float64  `parquet:"rank"`
	TextUnitIDs []string `parquet:"text_unit_ids"`
}

func TestReadParquetFile(t *testing.T) {
	desc := "Home hydrogen system"
	path := filepath.Join(t.TempDir(), "entities.parquet")
	err := parquet.WriteFile(path, []parquetEntity{
		{ID: "e1", Title: "H2@HOME", Description: &desc, Degree: 3, Rank: 0.5, TextUnitIDs: []string{"t1", "t2"}},
		{ID: "e2", Title: "ELECTROLYZER", Degree: 1, Rank: 0.25},
	})
	require.NoError(t, err)

	tbl, err := ReadParquetFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "title", "description", "degree", "rank", "text_unit_ids"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())

	assert.Equal(t, "H2@HOME", tbl.Value(0, "title"))
	assert.Equal(t, "Home hydrogen system", tbl.Value(0, "description"))
	assert.Nil(t, tbl.Value(1, "description"))
	assert.Equal(t, int64(3), tbl.Value(0, "degree"))
	assert.Equal(t, 0.5, tbl.Value(0, "rank"))
	assert.Equal(t, []any{"t1", "t2"}, tbl.Value(0, "text_unit_ids"))
	assert.Equal(t, []any{}, tbl.Value(1, "text_unit_ids"))
}

func TestReadParquetFileNullableLists(t *testing.T) {
	schema := parquet.NewSchema("relationships", parquet.Group{
		"id":            parquet.String(),
		"text_unit_ids": parquet.Optional(parquet.List(parquet.Optional(parquet.String()))),
	})
	str := func(s string) parquet.Value { return parquet.ValueOf(s) }
	null := parquet.Value{}
	rows := []parquet.Row{
		{str("r1").Level(0, 0, 0), str("t1").Level(0, 3, 1), null.Level(1, 2, 1), str("t2").Level(1, 3, 1)},
		{str("r2").Level(0, 0, 0), null.Level(0, 0, 1)},
		{str("r3").Level(0, 0, 0), null.Level(0, 1, 1)},
	}

	path := filepath.Join(t.TempDir(), "relationships.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewWriter(f, schema)
	_, err = w.WriteRows(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	tbl, err := ReadParquetFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())

	assert.Equal(t, []any{"t1", nil, "t2"}, tbl.Value(0, "text_unit_ids"))
	assert.Nil(t, tbl.Value(1, "text_unit_ids"))
	assert.Equal(t, []any{}, tbl.Value(2, "text_unit_ids"))

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteJSON(&buf))
	var records []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	assert.Nil(t, records[1]["text_unit_ids"])
	assert.Equal(t, []any{}, records[2]["text_unit_ids"])
}

func TestReadParquetFileMissing(t *testing.T) {
	_, err := ReadParquetFile(filepath.Join(t.TempDir(), "nope.parquet"))
	assert.Error(t, err)
}
