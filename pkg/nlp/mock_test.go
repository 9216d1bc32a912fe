package nlp

import (
	"context"
	"sync"

	"github.com/soundprediction/graphquery/pkg/types"
)

// mockClient is a mock LLM client for testing
type mockClient struct {
	mu               sync.Mutex
	callCount        int
	failUntilCall    int
	errorToReturn    error
	responseToReturn *types.Response
	closed           bool
}

func (m *mockClient) next(content string) (*types.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	if m.responseToReturn != nil {
		resp := *m.responseToReturn
		return &resp, nil
	}
	return &types.Response{Content: content}, nil
}

func (m *mockClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return m.next("success")
}

func (m *mockClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return m.next(`{"status": "success"}`)
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
