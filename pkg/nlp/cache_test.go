package nlp

import (
	"context"
	"testing"

	"github.com/soundprediction/graphquery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingClient(t *testing.T) {
	mock := &mockClient{responseToReturn: &types.Response{
		Content:      "H2@home stores solar energy as hydrogen.",
		FinishReason: "stop",
		TokensUsed:   &types.TokenUsage{TotalTokens: 42},
	}}
	client, err := NewCachingClient(mock, CacheOptions{InMemory: true, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	first, err := client.Chat(ctx, userPrompt())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := client.Chat(ctx, userPrompt())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 42, second.TokensUsed.TotalTokens)
	assert.Equal(t, 1, mock.calls())

	// Structured requests are keyed separately
	_, err = client.ChatWithStructuredOutput(ctx, userPrompt(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.calls())

	// So is a different prompt
	_, err = client.Chat(ctx, []types.Message{NewUserMessage("other")})
	require.NoError(t, err)
	assert.Equal(t, 3, mock.calls())
}

func TestCachingClientSkipsTruncated(t *testing.T) {
	mock := &mockClient{responseToReturn: &types.Response{Content: "partial", FinishReason: "length"}}
	client, err := NewCachingClient(mock, CacheOptions{InMemory: true})
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 2; i++ {
		resp, err := client.Chat(context.Background(), userPrompt())
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
	assert.Equal(t, 2, mock.calls())
}

func TestCachingClientKeyIncludesModel(t *testing.T) {
	a := &CachingClient{model: "a"}
	b := &CachingClient{model: "b"}
	assert.NotEqual(t, a.key(userPrompt(), false), b.key(userPrompt(), false))
	assert.NotEqual(t, a.key(userPrompt(), false), a.key(userPrompt(), true))
	assert.Equal(t, a.key(userPrompt(), false), a.key(userPrompt(), false))
}
