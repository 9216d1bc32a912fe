package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soundprediction/graphquery/pkg/types"
)

// fakeClient answers chat calls with canned replies and records every prompt.
type fakeClient struct {
	mu         sync.Mutex
	chats      [][]types.Message
	structured [][]types.Message

	answer   string
	mapReply string
	ratings  map[string]int // report content fragment -> rating
	err      error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		answer:   "H2@home stores surplus solar energy as hydrogen.",
		mapReply: `{"points": [{"description": "H2@home stores solar energy as hydrogen [Data: Reports (1)]", "score": 80}]}`,
	}
}

func (f *fakeClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &types.Response{Content: f.answer, TokensUsed: &types.TokenUsage{TotalTokens: 10}}, nil
}

func (f *fakeClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structured = append(f.structured, messages)
	if f.err != nil {
		return nil, f.err
	}
	usage := &types.TokenUsage{TotalTokens: 5}
	if strings.Contains(messages[0].Content, `"rating"`) {
		rating := 0
		for fragment, r := range f.ratings {
			if strings.Contains(messages[1].Content, fragment) {
				rating = r
			}
		}
		return &types.Response{Content: fmt.Sprintf(`{"rating": %d, "reason": "fixture"}`, rating), TokensUsed: usage}, nil
	}
	return &types.Response{Content: f.mapReply, TokensUsed: usage}, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats), len(f.structured)
}
