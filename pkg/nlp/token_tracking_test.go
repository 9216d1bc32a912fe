package nlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetTokenTracker(t *testing.T) {
	tokenDir := filepath.Join(t.TempDir(), "tokens")

	tracker, err := NewTokenTracker(tokenDir)
	require.NoError(t, err)
	tracker.batchSize = 1 // flush on every write

	ctx := context.WithValue(context.Background(), types.ContextKeyRunID, "run-1")
	ctx = context.WithValue(ctx, types.ContextKeyMode, types.ModeGlobal)
	ctx = context.WithValue(ctx, types.ContextKeySource, "cli")

	usage := &types.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
	require.NoError(t, tracker.AddUsage(ctx, usage, "gpt-4o-mini", false))

	entries, err := os.ReadDir(tokenDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "token_usage_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".parquet"))

	records, err := parquet.ReadFile[TokenUsageRecord](filepath.Join(tokenDir, entries[0].Name()))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "global", records[0].Mode)
	assert.Equal(t, "cli", records[0].RequestSource)
	assert.Equal(t, 30, records[0].TotalTokens)
	assert.Equal(t, "gpt-4o-mini", records[0].Model)
}

func TestTokenTrackingClient(t *testing.T) {
	tracker, err := NewTokenTracker(t.TempDir())
	require.NoError(t, err)

	mock := &mockClient{responseToReturn: &types.Response{
		Content:    "answer",
		Model:      "gpt-4o-mini",
		TokensUsed: &types.TokenUsage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}}
	client := NewTokenTrackingClient(mock, tracker, nil)

	local := context.WithValue(context.Background(), types.ContextKeyMode, types.ModeLocal)
	basic := context.WithValue(context.Background(), types.ContextKeyMode, types.ModeBasic)

	_, err = client.Chat(local, userPrompt())
	require.NoError(t, err)
	_, err = client.ChatWithStructuredOutput(local, userPrompt(), nil)
	require.NoError(t, err)
	_, err = client.Chat(basic, userPrompt())
	require.NoError(t, err)

	totals := tracker.Totals()
	assert.Equal(t, 24, totals["local"].TotalTokens)
	assert.Equal(t, 12, totals["basic"].TotalTokens)

	require.NoError(t, client.Close())
	assert.True(t, mock.closed)
}

func TestTokenTrackerSkipsCachedTotals(t *testing.T) {
	tracker, err := NewTokenTracker(t.TempDir())
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), types.ContextKeyMode, types.ModeBasic)
	usage := &types.TokenUsage{TotalTokens: 9}
	require.NoError(t, tracker.AddUsage(ctx, usage, "m", true))
	require.NoError(t, tracker.AddUsage(ctx, usage, "m", false))

	assert.Equal(t, 9, tracker.Totals()["basic"].TotalTokens)
}
