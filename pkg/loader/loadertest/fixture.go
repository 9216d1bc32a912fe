// Package loadertest writes a small GraphRAG-style index for tests.
package loadertest

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// TextUnit mirrors the text_units table columns used by search.
type TextUnit struct {
	ID              string   `parquet:"id"`
	HumanReadableID int64    `parquet:"human_readable_id"`
	Text            string   `parquet:"text"`
	NTokens         int64    `parquet:"n_tokens"`
	DocumentIDs     []string `parquet:"document_ids"`
	EntityIDs       []string `parquet:"entity_ids"`
	RelationshipIDs []string `parquet:"relationship_ids"`
}

// Entity mirrors the entities table.
type Entity struct {
	ID              string   `parquet:"id"`
	HumanReadableID int64    `parquet:"human_readable_id"`
	Title           string   `parquet:"title"`
	Type            string   `parquet:"type"`
	Description     string   `parquet:"description"`
	TextUnitIDs     []string `parquet:"text_unit_ids"`
	Frequency       int64    `parquet:"frequency"`
	Degree          int64    `parquet:"degree"`
}

// Relationship mirrors the relationships table.
type Relationship struct {
	ID              string   `parquet:"id"`
	HumanReadableID int64    `parquet:"human_readable_id"`
	Source          string   `parquet:"source"`
	Target          string   `parquet:"target"`
	Description     string   `parquet:"description"`
	Weight          float64  `parquet:"weight"`
	CombinedDegree  int64    `parquet:"combined_degree"`
	TextUnitIDs     []string `parquet:"text_unit_ids"`
}

// Community mirrors the communities table.
type Community struct {
	ID              string   `parquet:"id"`
	HumanReadableID int64    `parquet:"human_readable_id"`
	Community       int64    `parquet:"community"`
	Level           int64    `parquet:"level"`
	Parent          int64    `parquet:"parent"`
	Children        []int64  `parquet:"children"`
	Title           string   `parquet:"title"`
	EntityIDs       []string `parquet:"entity_ids"`
	RelationshipIDs []string `parquet:"relationship_ids"`
	TextUnitIDs     []string `parquet:"text_unit_ids"`
	Size            int64    `parquet:"size"`
}

// CommunityReport mirrors the community_reports table.
type CommunityReport struct {
	ID              string  `parquet:"id"`
	HumanReadableID int64   `parquet:"human_readable_id"`
	Community       int64   `parquet:"community"`
	Level           int64   `parquet:"level"`
	Parent          int64   `parquet:"parent"`
	Children        []int64 `parquet:"children"`
	Title           string  `parquet:"title"`
	Summary         string  `parquet:"summary"`
	FullContent     string  `parquet:"full_content"`
	Rank            float64 `parquet:"rank"`
	Size            int64   `parquet:"size"`
}

// TextUnitRows returns the fixture text units.
func TextUnitRows() []TextUnit {
	return []TextUnit{
		{ID: "t1", HumanReadableID: 1, NTokens: 40, DocumentIDs: []string{"d1"},
			Text:            "H2@home is a residential hydrogen system. Homeowners use H2@home to store surplus solar energy as hydrogen and to heat their houses in winter.",
			EntityIDs:       []string{"e1", "e3", "e5"},
			RelationshipIDs: []string{"r1", "r3"}},
		{ID: "t2", HumanReadableID: 2, NTokens: 30, DocumentIDs: []string{"d1"},
			Text:            "The electrolyzer inside H2@home splits water into hydrogen and oxygen using electricity from rooftop panels.",
			EntityIDs:       []string{"e1", "e2", "e3"},
			RelationshipIDs: []string{"r1", "r4"}},
		{ID: "t3", HumanReadableID: 3, NTokens: 25, DocumentIDs: []string{"d1"},
			Text:            "A fuel cell converts stored hydrogen back into electricity and heat during the night.",
			EntityIDs:       []string{"e4"},
			RelationshipIDs: []string{"r2"}},
		{ID: "t4", HumanReadableID: 4, NTokens: 20, DocumentIDs: []string{"d2"},
			Text: "Municipal zoning rules for garden sheds were revised in 2019."},
	}
}

// EntityRows returns the fixture entities.
func EntityRows() []Entity {
	return []Entity{
		{ID: "e1", HumanReadableID: 0, Title: "H2@HOME", Type: "PRODUCT", Frequency: 2, Degree: 3,
			Description: "H2@home is a residential hydrogen system used to store solar energy and heat homes.",
			TextUnitIDs: []string{"t1", "t2"}},
		{ID: "e2", HumanReadableID: 1, Title: "ELECTROLYZER", Type: "DEVICE", Frequency: 1, Degree: 2,
			Description: "The electrolyzer splits water into hydrogen and oxygen.",
			TextUnitIDs: []string{"t2"}},
		{ID: "e3", HumanReadableID: 2, Title: "SOLAR PANELS", Type: "DEVICE", Frequency: 2, Degree: 2,
			Description: "Rooftop solar panels provide the electricity for hydrogen production.",
			TextUnitIDs: []string{"t1", "t2"}},
		{ID: "e4", HumanReadableID: 3, Title: "FUEL CELL", Type: "DEVICE", Frequency: 1, Degree: 1,
			Description: "A fuel cell turns stored hydrogen into electricity and heat.",
			TextUnitIDs: []string{"t3"}},
		{ID: "e5", HumanReadableID: 4, Title: "HOMEOWNERS", Type: "PERSON", Frequency: 1, Degree: 1,
			Description: "Homeowners operate the system.",
			TextUnitIDs: []string{"t1"}},
	}
}

// RelationshipRows returns the fixture relationships.
func RelationshipRows() []Relationship {
	return []Relationship{
		{ID: "r1", HumanReadableID: 0, Source: "H2@HOME", Target: "SOLAR PANELS", Weight: 2, CombinedDegree: 5,
			Description: "H2@home stores surplus energy from solar panels as hydrogen.", TextUnitIDs: []string{"t1", "t2"}},
		{ID: "r2", HumanReadableID: 1, Source: "H2@HOME", Target: "FUEL CELL", Weight: 1, CombinedDegree: 4,
			Description: "H2@home uses a fuel cell to turn hydrogen into heat and power.", TextUnitIDs: []string{"t3"}},
		{ID: "r3", HumanReadableID: 2, Source: "HOMEOWNERS", Target: "H2@HOME", Weight: 1, CombinedDegree: 4,
			Description: "Homeowners heat their houses with H2@home.", TextUnitIDs: []string{"t1"}},
		{ID: "r4", HumanReadableID: 3, Source: "ELECTROLYZER", Target: "H2@HOME", Weight: 1, CombinedDegree: 5,
			Description: "The electrolyzer is part of H2@home.", TextUnitIDs: []string{"t2"}},
	}
}

// CommunityRows returns the fixture communities: one root with two children.
func CommunityRows() []Community {
	return []Community{
		{ID: "c0", HumanReadableID: 0, Community: 0, Level: 0, Parent: -1, Children: []int64{1, 2}, Title: "Community 0",
			EntityIDs: []string{"e1", "e2", "e3", "e4", "e5"}, RelationshipIDs: []string{"r1", "r2", "r3", "r4"},
			TextUnitIDs: []string{"t1", "t2", "t3"}, Size: 5},
		{ID: "c1", HumanReadableID: 1, Community: 1, Level: 1, Parent: 0, Title: "Community 1",
			EntityIDs: []string{"e1", "e2", "e3"}, RelationshipIDs: []string{"r1", "r4"},
			TextUnitIDs: []string{"t1", "t2"}, Size: 3},
		{ID: "c2", HumanReadableID: 2, Community: 2, Level: 1, Parent: 0, Title: "Community 2",
			EntityIDs: []string{"e4", "e5"}, RelationshipIDs: []string{"r2", "r3"},
			TextUnitIDs: []string{"t1", "t3"}, Size: 2},
	}
}

// CommunityReportRows returns the fixture community reports.
func CommunityReportRows() []CommunityReport {
	return []CommunityReport{
		{ID: "cr0", HumanReadableID: 0, Community: 0, Level: 0, Parent: -1, Children: []int64{1, 2}, Rank: 8.5, Size: 5,
			Title:       "H2@home Residential Hydrogen Ecosystem",
			Summary:     "H2@home stores solar energy as hydrogen for home heating and power.",
			FullContent: "# H2@home Residential Hydrogen Ecosystem\n\nH2@home stores solar energy as hydrogen. An electrolyzer produces hydrogen and a fuel cell returns heat and power."},
		{ID: "cr1", HumanReadableID: 1, Community: 1, Level: 1, Parent: 0, Rank: 7.0, Size: 3,
			Title:       "Hydrogen Production at Home",
			Summary:     "Solar panels power the electrolyzer inside H2@home.",
			FullContent: "# Hydrogen Production at Home\n\nSolar panels power the electrolyzer inside H2@home to produce hydrogen."},
		{ID: "cr2", HumanReadableID: 2, Community: 2, Level: 1, Parent: 0, Rank: 6.0, Size: 2,
			Title:       "Heating Homes with Fuel Cells",
			Summary:     "Homeowners heat houses with the H2@home fuel cell.",
			FullContent: "# Heating Homes with Fuel Cells\n\nHomeowners heat their houses with heat from the fuel cell."},
	}
}

// WriteIndex writes the fixture tables as parquet files into dir.
func WriteIndex(t testing.TB, dir string) {
	t.Helper()
	write(t, filepath.Join(dir, "text_units.parquet"), TextUnitRows())
	write(t, filepath.Join(dir, "entities.parquet"), EntityRows())
	write(t, filepath.Join(dir, "relationships.parquet"), RelationshipRows())
	write(t, filepath.Join(dir, "communities.parquet"), CommunityRows())
	write(t, filepath.Join(dir, "community_reports.parquet"), CommunityReportRows())
}

func write[T any](t testing.TB, path string, rows []T) {
	t.Helper()
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// Tables returns the fixture as in-memory tables with the same shape ReadParquetFile produces.
func Tables() *types.Tables {
	textUnits := table.New([]string{"id", "human_readable_id", "text", "n_tokens", "document_ids", "entity_ids", "relationship_ids"}, nil)
	for _, r := range TextUnitRows() {
		textUnits.Rows = append(textUnits.Rows, []any{r.ID, r.HumanReadableID, r.Text, r.NTokens, list(r.DocumentIDs), list(r.EntityIDs), list(r.RelationshipIDs)})
	}

	entities := table.New([]string{"id", "human_readable_id", "title", "type", "description", "text_unit_ids", "frequency", "degree"}, nil)
	for _, r := range EntityRows() {
		entities.Rows = append(entities.Rows, []any{r.ID, r.HumanReadableID, r.Title, r.Type, r.Description, list(r.TextUnitIDs), r.Frequency, r.Degree})
	}

	relationships := table.New([]string{"id", "human_readable_id", "source", "target", "description", "weight", "combined_degree", "text_unit_ids"}, nil)
	for _, r := range RelationshipRows() {
		relationships.Rows = append(relationships.Rows, []any{r.ID, r.HumanReadableID, r.Source, r.Target, r.Description, r.Weight, r.CombinedDegree, list(r.TextUnitIDs)})
	}

	communities := table.New([]string{"id", "human_readable_id", "community", "level", "parent", "children", "title", "entity_ids", "relationship_ids", "text_unit_ids", "size"}, nil)
	for _, r := range CommunityRows() {
		communities.Rows = append(communities.Rows, []any{r.ID, r.HumanReadableID, r.Community, r.Level, r.Parent, ints(r.Children), r.Title, list(r.EntityIDs), list(r.RelationshipIDs), list(r.TextUnitIDs), r.Size})
	}

	reports := table.New([]string{"id", "human_readable_id", "community", "level", "parent", "children", "title", "summary", "full_content", "rank", "size"}, nil)
	for _, r := range CommunityReportRows() {
		reports.Rows = append(reports.Rows, []any{r.ID, r.HumanReadableID, r.Community, r.Level, r.Parent, ints(r.Children), r.Title, r.Summary, r.FullContent, r.Rank, r.Size})
	}

	return &types.Tables{
		TextUnits:        textUnits,
		Entities:         entities,
		Relationships:    relationships,
		Communities:      communities,
		CommunityReports: reports,
	}
}

func list(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func ints(values []int64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
