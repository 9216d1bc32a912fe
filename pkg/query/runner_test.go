package query

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/loader/loadertest"
	"github.com/soundprediction/graphquery/pkg/persist"
	"github.com/soundprediction/graphquery/pkg/search"
	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const h2Query = "What is H2@home used for?"

// fakeSearcher returns a canned result per mode, or the configured failure.
type fakeSearcher struct {
	mu     sync.Mutex
	calls  []types.Mode
	fail   map[types.Mode]error
	panics map[types.Mode]bool
	block  bool

	basic  search.BasicSearchRequest
	local  search.LocalSearchRequest
	global search.GlobalSearchRequest
}

func (f *fakeSearcher) record(ctx context.Context, mode types.Mode) (*types.RetrievalResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mode)
	f.mu.Unlock()

	if f.panics[mode] {
		panic("index corrupted")
	}
	if err := f.fail[mode]; err != nil {
		return nil, err
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	result := &types.RetrievalResult{Answer: string(mode) + " answer", TokensUsed: &types.TokenUsage{TotalTokens: 7}}
	result.Context.SetTable("sources", table.New([]string{"id", "text"}, [][]any{{"1", string(mode)}}))
	return result, nil
}

func (f *fakeSearcher) BasicSearch(ctx context.Context, req search.BasicSearchRequest) (*types.RetrievalResult, error) {
	f.mu.Lock()
	f.basic = req
	f.mu.Unlock()
	return f.record(ctx, types.ModeBasic)
}

func (f *fakeSearcher) LocalSearch(ctx context.Context, req search.LocalSearchRequest) (*types.RetrievalResult, error) {
	f.mu.Lock()
	f.local = req
	f.mu.Unlock()
	return f.record(ctx, types.ModeLocal)
}

func (f *fakeSearcher) GlobalSearch(ctx context.Context, req search.GlobalSearchRequest) (*types.RetrievalResult, error) {
	f.mu.Lock()
	f.global = req
	f.mu.Unlock()
	return f.record(ctx, types.ModeGlobal)
}

// fakeSaver records save requests and the context values they carried.
type fakeSaver struct {
	mu    sync.Mutex
	saved []persist.SaveRequest
	runID []any
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, req persist.SaveRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, req)
	f.runID = append(f.runID, ctx.Value(types.ContextKeyRunID))
	return "query_20250101_000000_" + string(req.Mode), nil
}

func testPlan() Plan {
	return Plan{
		Query:          h2Query,
		Tables:         loadertest.Tables(),
		CommunityLevel: 2,
		ResponseType:   "Multiple Paragraphs",
	}
}

func TestRunAllModes(t *testing.T) {
	searcher := &fakeSearcher{}
	saver := &fakeSaver{}
	var console bytes.Buffer
	runner := NewRunner(searcher, saver, WithConsole(&console))

	outcomes := runner.Run(context.Background(), testPlan())

	require.Len(t, outcomes, 3)
	assert.Equal(t, []types.Mode{types.ModeBasic, types.ModeLocal, types.ModeGlobal}, searcher.calls)
	for i, mode := range types.DefaultModes() {
		assert.Equal(t, mode, outcomes[i].Mode)
		assert.True(t, outcomes[i].Succeeded())
		assert.Equal(t, string(mode)+" answer", outcomes[i].Answer)
		assert.Equal(t, "query_20250101_000000_"+string(mode), outcomes[i].Folder)
	}
	assert.Equal(t, "running query: 'What is H2@home used for?'\n", console.String())

	require.Len(t, saver.saved, 3)
	tables := testPlan().Tables
	for _, req := range saver.saved {
		assert.Equal(t, h2Query, req.Query)
		assert.Equal(t, tables.Entities.Len(), req.Entities.Len())
		assert.Equal(t, tables.Relationships.Len(), req.Relationships.Len())
	}
	assert.NotEmpty(t, saver.runID[0])
	assert.Equal(t, saver.runID[0], saver.runID[2], "one run id per run")
}

func TestRunModeArguments(t *testing.T) {
	searcher := &fakeSearcher{}
	runner := NewRunner(searcher, &fakeSaver{}, WithConsole(&bytes.Buffer{}))

	plan := testPlan()
	plan.Tables.Covariates = table.New([]string{"id"}, nil)
	plan.DynamicCommunitySelection = true
	runner.Run(context.Background(), plan)

	assert.Equal(t, search.BasicSearchRequest{Query: h2Query, TextUnits: plan.Tables.TextUnits}, searcher.basic,
		"basic search gets the query and text units only")
	assert.Same(t, plan.Tables.TextUnits, searcher.basic.TextUnits)

	assert.Same(t, plan.Tables.Entities, searcher.local.Entities)
	assert.Same(t, plan.Tables.Relationships, searcher.local.Relationships)
	assert.Nil(t, searcher.local.Covariates)
	assert.Equal(t, 2, searcher.local.CommunityLevel)
	assert.Equal(t, "Multiple Paragraphs", searcher.local.ResponseType)

	assert.Same(t, plan.Tables.CommunityReports, searcher.global.CommunityReports)
	assert.True(t, searcher.global.DynamicCommunitySelection)
}

func TestRunIsolatesFailures(t *testing.T) {
	searcher := &fakeSearcher{
		fail:   map[types.Mode]error{types.ModeBasic: errors.New("llm unavailable")},
		panics: map[types.Mode]bool{types.ModeLocal: true},
	}
	saver := &fakeSaver{}
	var console bytes.Buffer
	runner := NewRunner(searcher, saver, WithConsole(&console))

	outcomes := runner.Run(context.Background(), testPlan())

	require.Len(t, outcomes, 3)
	assert.EqualError(t, outcomes[0].Err, "llm unavailable")
	require.Error(t, outcomes[1].Err)
	assert.Contains(t, outcomes[1].Err.Error(), "index corrupted")
	assert.True(t, outcomes[2].Succeeded())
	assert.Equal(t, 2, Failed(outcomes))

	assert.Equal(t, []types.Mode{types.ModeBasic, types.ModeLocal, types.ModeGlobal}, searcher.calls)
	require.Len(t, saver.saved, 1, "failed modes are not persisted")
	assert.Equal(t, types.ModeGlobal, saver.saved[0].Mode)

	lines := strings.Split(strings.TrimSpace(console.String()), "\n")
	assert.Equal(t, []string{
		"running query: 'What is H2@home used for?'",
		"basic search failed",
		"local search failed",
	}, lines)
}

func TestRunSaveFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	var console bytes.Buffer
	runner := NewRunner(&fakeSearcher{}, saver, WithConsole(&console))

	plan := testPlan()
	plan.Modes = []types.Mode{types.ModeBasic}
	outcomes := runner.Run(context.Background(), plan)

	require.Len(t, outcomes, 1)
	assert.ErrorContains(t, outcomes[0].Err, "disk full")
	assert.Empty(t, outcomes[0].Folder)
	assert.Contains(t, console.String(), "basic search failed\n")
}

func TestRunWithoutIndex(t *testing.T) {
	runner := NewRunner(&fakeSearcher{}, &fakeSaver{}, WithConsole(&bytes.Buffer{}))
	plan := testPlan()
	plan.Tables = nil

	outcomes := runner.Run(context.Background(), plan)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, ErrNoIndex)
	}
}

func TestRunTimeout(t *testing.T) {
	runner := NewRunner(&fakeSearcher{block: true}, &fakeSaver{}, WithConsole(&bytes.Buffer{}))
	plan := testPlan()
	plan.Modes = []types.Mode{types.ModeGlobal}
	plan.Timeout = 20 * time.Millisecond

	outcomes := runner.Run(context.Background(), plan)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
}

func TestRunConcurrent(t *testing.T) {
	searcher := &fakeSearcher{fail: map[types.Mode]error{types.ModeLocal: errors.New("boom")}}
	var console bytes.Buffer
	runner := NewRunner(searcher, &fakeSaver{}, WithConsole(&console))

	plan := testPlan()
	plan.Concurrency = 3
	outcomes := runner.Run(context.Background(), plan)

	require.Len(t, outcomes, 3)
	assert.Equal(t, types.ModeBasic, outcomes[0].Mode)
	assert.Equal(t, types.ModeLocal, outcomes[1].Mode)
	assert.Equal(t, types.ModeGlobal, outcomes[2].Mode)
	assert.True(t, outcomes[0].Succeeded())
	assert.False(t, outcomes[1].Succeeded())
	assert.True(t, outcomes[2].Succeeded())
	assert.ElementsMatch(t, types.DefaultModes(), searcher.calls)
	assert.Contains(t, console.String(), "local search failed\n")
}

func TestRunPersistsToDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "queries")
	var console bytes.Buffer
	saver, err := persist.New(root, persist.WithConsole(&console))
	require.NoError(t, err)
	runner := NewRunner(&fakeSearcher{}, saver, WithConsole(&console))

	plan := testPlan()
	plan.Modes = []types.Mode{types.ModeBasic, types.ModeGlobal}
	outcomes := runner.Run(context.Background(), plan)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Regexp(t, `^query_\d{8}_\d{6}_`+string(o.Mode)+`$`, o.Folder)
		data, err := os.ReadFile(filepath.Join(root, o.Folder, "query.txt"))
		require.NoError(t, err)
		assert.Equal(t, h2Query, string(data))
		assert.FileExists(t, filepath.Join(root, o.Folder, "context_sources.csv"))
		assert.Contains(t, console.String(), "results: "+string(o.Mode)+" saved in "+o.Folder+"\n")
	}
}

func TestPlanFrom(t *testing.T) {
	cfg := config.QueryConfig{
		Text:           h2Query,
		Modes:          []string{"Global", "basic", "global"},
		CommunityLevel: 1,
		ResponseType:   "List of 3-7 Points",
		Concurrency:    2,
		Timeout:        30,
	}
	plan, err := PlanFrom(cfg, loadertest.Tables())
	require.NoError(t, err)
	assert.Equal(t, []types.Mode{types.ModeGlobal, types.ModeBasic}, plan.Modes)
	assert.Equal(t, 30*time.Second, plan.Timeout)
	assert.Equal(t, 1, plan.CommunityLevel)

	cfg.Modes = []string{"drift"}
	_, err = PlanFrom(cfg, nil)
	assert.ErrorIs(t, err, types.ErrUnknownMode)
}

func TestSummary(t *testing.T) {
	var out bytes.Buffer
	Summary(&out, []types.Outcome{
		{Mode: types.ModeBasic, Folder: "query_20250101_000000_basic", Duration: 1500 * time.Millisecond},
		{Mode: types.ModeLocal, Err: errors.New("local search: rate limit\nretry later")},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "query_20250101_000000_basic")
	assert.Contains(t, lines[0], "1.5s")
	assert.Contains(t, lines[1], "failed")
	assert.True(t, strings.HasSuffix(lines[1], "local search: rate limit"))
}
