package search

import (
	"context"
	"errors"
	"testing"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/loader/loadertest"
	"github.com/soundprediction/graphquery/pkg/prompts"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const h2Query = "What is H2@home used for?"

func contextKeys(c types.Context) []string {
	var keys []string
	for _, e := range c.Entries() {
		keys = append(keys, e.Key)
	}
	return keys
}

func column(t *table.Table, name string) []string {
	var out []string
	for r := 0; r < t.Len(); r++ {
		out = append(out, t.String(r, name))
	}
	return out
}

func TestBasicSearch(t *testing.T) {
	tables := loadertest.Tables()
	client := newFakeClient()
	engine := NewEngine(client, DefaultOptions(), nil)

	result, err := engine.BasicSearch(context.Background(), BasicSearchRequest{
		Query:     h2Query,
		TextUnits: tables.TextUnits,
	})
	require.NoError(t, err)

	assert.Equal(t, client.answer, result.Answer)
	assert.Equal(t, []string{"sources"}, contextKeys(result.Context))
	assert.Equal(t, 10, result.TokensUsed.TotalTokens)

	sources, ok := result.Context.Table("sources")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "text"}, sources.Columns)
	assert.Equal(t, []string{"1", "2"}, column(sources, "id"))

	chats, _ := client.counts()
	require.Equal(t, 1, chats)
	system := client.chats[0][0].Content
	assert.Contains(t, system, "-----Sources-----")
	assert.Contains(t, system, DefaultResponseType)
	assert.NotContains(t, system, "zoning")
}

func TestBasicSearchNoMatch(t *testing.T) {
	client := newFakeClient()
	engine := NewEngine(client, DefaultOptions(), nil)

	result, err := engine.BasicSearch(context.Background(), BasicSearchRequest{
		Query:     "quantum chromodynamics",
		TextUnits: loadertest.Tables().TextUnits,
	})
	require.NoError(t, err)
	assert.Equal(t, prompts.NoDataAnswer, result.Answer)

	sources, ok := result.Context.Table("sources")
	require.True(t, ok)
	assert.Zero(t, sources.Len())
	chats, _ := client.counts()
	assert.Zero(t, chats)
}

func TestBasicSearchTokenBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxContextTokens = 40
	engine := NewEngine(newFakeClient(), opts, nil)

	result, err := engine.BasicSearch(context.Background(), BasicSearchRequest{
		Query:     h2Query,
		TextUnits: loadertest.Tables().TextUnits,
	})
	require.NoError(t, err)
	sources, _ := result.Context.Table("sources")
	assert.Equal(t, []string{"1"}, column(sources, "id"))
}

func TestSearchValidation(t *testing.T) {
	tables := loadertest.Tables()
	engine := NewEngine(newFakeClient(), DefaultOptions(), nil)
	ctx := context.Background()

	_, err := engine.BasicSearch(ctx, BasicSearchRequest{Query: "  ", TextUnits: tables.TextUnits})
	assert.ErrorIs(t, err, types.ErrEmptyQuery)

	_, err = engine.BasicSearch(ctx, BasicSearchRequest{Query: h2Query})
	assert.Error(t, err)

	_, err = engine.LocalSearch(ctx, LocalSearchRequest{Query: h2Query, Entities: tables.Entities, CommunityLevel: -1})
	assert.ErrorIs(t, err, types.ErrInvalidLevel)

	_, err = engine.GlobalSearch(ctx, GlobalSearchRequest{Query: h2Query, CommunityReports: table.New([]string{"id"}, nil)})
	assert.Error(t, err)
}

func TestBasicSearchModelError(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("503 service unavailable")
	engine := NewEngine(client, DefaultOptions(), nil)

	_, err := engine.BasicSearch(context.Background(), BasicSearchRequest{Query: h2Query, TextUnits: loadertest.Tables().TextUnits})
	require.Error(t, err)
	assert.ErrorIs(t, err, client.err)
	assert.Contains(t, err.Error(), "basic search")
}

func localRequest(tables *types.Tables) LocalSearchRequest {
	return LocalSearchRequest{
		Query:            h2Query,
		Entities:         tables.Entities,
		Communities:      tables.Communities,
		CommunityReports: tables.CommunityReports,
		TextUnits:        tables.TextUnits,
		Relationships:    tables.Relationships,
		CommunityLevel:   2,
		ResponseType:     "Multiple Paragraphs",
	}
}

func TestLocalSearch(t *testing.T) {
	client := newFakeClient()
	engine := NewEngine(client, DefaultOptions(), nil)

	result, err := engine.LocalSearch(context.Background(), localRequest(loadertest.Tables()))
	require.NoError(t, err)

	assert.Equal(t, client.answer, result.Answer)
	assert.Equal(t, []string{"reports", "entities", "relationships", "sources"}, contextKeys(result.Context))

	entities, _ := result.Context.Table("entities")
	assert.Equal(t, []string{"H2@HOME"}, column(entities, "entity"))
	assert.Equal(t, []string{"3"}, column(entities, "number of relationships"))

	relationships, _ := result.Context.Table("relationships")
	assert.Len(t, column(relationships, "id"), 4)

	reports, _ := result.Context.Table("reports")
	assert.Equal(t, []string{"0", "1"}, column(reports, "id"))

	sources, _ := result.Context.Table("sources")
	assert.Equal(t, []string{"1", "2"}, column(sources, "id"))

	chats, _ := client.counts()
	require.Equal(t, 1, chats)
	system := client.chats[0][0].Content
	for _, heading := range []string{"-----Reports-----", "-----Entities-----", "-----Relationships-----", "-----Sources-----"} {
		assert.Contains(t, system, heading)
	}
	assert.NotContains(t, system, "-----Claims-----")
}

func TestLocalSearchWithCovariates(t *testing.T) {
	tables := loadertest.Tables()
	req := localRequest(tables)
	req.Covariates = table.New(
		[]string{"id", "human_readable_id", "subject_id", "object_id", "status", "description"},
		[][]any{
			{"cv1", int64(0), "H2@HOME", "SOLAR PANELS", "TRUE", "H2@home stores solar energy."},
			{"cv2", int64(1), "ZONING BOARD", "SHEDS", "TRUE", "Zoning rules were revised."},
		})

	engine := NewEngine(newFakeClient(), DefaultOptions(), nil)
	result, err := engine.LocalSearch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"reports", "entities", "relationships", "claims", "sources"}, contextKeys(result.Context))
	claims, _ := result.Context.Table("claims")
	assert.Equal(t, []string{"0"}, column(claims, "id"))
}

func TestLocalSearchNoEntities(t *testing.T) {
	client := newFakeClient()
	engine := NewEngine(client, DefaultOptions(), nil)

	req := localRequest(loadertest.Tables())
	req.Query = "quantum chromodynamics"
	result, err := engine.LocalSearch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, prompts.NoDataAnswer, result.Answer)
	chats, _ := client.counts()
	assert.Zero(t, chats)
}

func globalRequest(tables *types.Tables, level int) GlobalSearchRequest {
	return GlobalSearchRequest{
		Query:            h2Query,
		Entities:         tables.Entities,
		Communities:      tables.Communities,
		CommunityReports: tables.CommunityReports,
		CommunityLevel:   level,
		ResponseType:     "Multiple Paragraphs",
	}
}

func TestGlobalSearchStatic(t *testing.T) {
	client := newFakeClient()
	// trailing comma must be repaired
	client.mapReply = `{"points": [{"description": "H2@home stores solar energy [Data: Reports (1)]", "score": 80},]}`
	engine := NewEngine(client, DefaultOptions(), nil)

	result, err := engine.GlobalSearch(context.Background(), globalRequest(loadertest.Tables(), 2))
	require.NoError(t, err)

	assert.Equal(t, client.answer, result.Answer)
	assert.Equal(t, []string{"reports"}, contextKeys(result.Context))
	reports, _ := result.Context.Table("reports")
	assert.Equal(t, []string{"id", "title", "content", "rank"}, reports.Columns)
	assert.Equal(t, []string{"1", "2"}, column(reports, "id"))

	chats, structured := client.counts()
	assert.Equal(t, 1, chats)
	assert.Equal(t, 1, structured)
	reduce := client.chats[0][0].Content
	assert.Contains(t, reduce, "----Analyst 1----")
	assert.Contains(t, reduce, "Importance Score: 80")
	assert.Equal(t, 15, result.TokensUsed.TotalTokens)
}

func TestGlobalSearchRootLevel(t *testing.T) {
	engine := NewEngine(newFakeClient(), DefaultOptions(), nil)

	result, err := engine.GlobalSearch(context.Background(), globalRequest(loadertest.Tables(), 0))
	require.NoError(t, err)
	reports, _ := result.Context.Table("reports")
	assert.Equal(t, []string{"0"}, column(reports, "id"))
}

func TestGlobalSearchBatches(t *testing.T) {
	client := newFakeClient()
	opts := DefaultOptions()
	opts.MapBatchTokens = 1
	engine := NewEngine(client, opts, nil)

	_, err := engine.GlobalSearch(context.Background(), globalRequest(loadertest.Tables(), 2))
	require.NoError(t, err)
	_, structured := client.counts()
	assert.Equal(t, 2, structured, "one map call per report")
}

func TestGlobalSearchDynamic(t *testing.T) {
	client := newFakeClient()
	client.ratings = map[string]int{
		"Residential Hydrogen Ecosystem": 5,
		"Hydrogen Production at Home":    4,
		"Heating Homes with Fuel Cells":  0,
	}
	engine := NewEngine(client, DefaultOptions(), nil)

	req := globalRequest(loadertest.Tables(), 2)
	req.DynamicCommunitySelection = true
	result, err := engine.GlobalSearch(context.Background(), req)
	require.NoError(t, err)

	reports, _ := result.Context.Table("reports")
	assert.Equal(t, []string{"1"}, column(reports, "id"), "relevant child replaces its parent")

	chats, structured := client.counts()
	assert.Equal(t, 1, chats)
	assert.Equal(t, 4, structured, "three ratings and one map call")
}

func TestGlobalSearchDynamicFallsBack(t *testing.T) {
	client := newFakeClient()
	engine := NewEngine(client, DefaultOptions(), nil)

	req := globalRequest(loadertest.Tables(), 2)
	req.DynamicCommunitySelection = true
	result, err := engine.GlobalSearch(context.Background(), req)
	require.NoError(t, err)

	reports, _ := result.Context.Table("reports")
	assert.Equal(t, []string{"1", "2"}, column(reports, "id"))
}

func TestGlobalSearchNoPoints(t *testing.T) {
	client := newFakeClient()
	client.mapReply = `{"points": [{"description": "I don't know", "score": 0}]}`
	engine := NewEngine(client, DefaultOptions(), nil)

	result, err := engine.GlobalSearch(context.Background(), globalRequest(loadertest.Tables(), 2))
	require.NoError(t, err)
	assert.Equal(t, prompts.NoDataAnswer, result.Answer)
	chats, _ := client.counts()
	assert.Zero(t, chats)
}

func TestGlobalSearchMapFailure(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("invalid api key")
	engine := NewEngine(client, DefaultOptions(), nil)

	_, err := engine.GlobalSearch(context.Background(), globalRequest(loadertest.Tables(), 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.err)
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(config.SearchConfig{MaxContextTokens: 500, CommunityProp: 0.7, TextUnitProp: 0.6, RatingThreshold: 3})
	assert.Equal(t, 500, opts.MaxContextTokens)
	assert.Equal(t, 10, opts.TopKEntities)
	assert.Equal(t, 3, opts.RatingThreshold)
	// proportions over 1 are ignored
	assert.Equal(t, 0.15, opts.CommunityProp)
	assert.Equal(t, 0.5, opts.TextUnitProp)
}
