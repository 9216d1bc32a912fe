package nlp

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/types"
)

// RateLimitedClient paces requests with a token bucket so concurrent searches
// stay under the provider's request quota.
type RateLimitedClient struct {
	client  Client
	limiter *rate.Limiter
}

// NewRateLimitedClient creates a client allowing cfg.RequestsPerMinute with cfg.Burst.
func NewRateLimitedClient(client Client, cfg config.RateLimitConfig) *RateLimitedClient {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}
	return &RateLimitedClient{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Chat implements Client
func (c *RateLimitedClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.client.Chat(ctx, messages)
}

// ChatWithStructuredOutput implements Client
func (c *RateLimitedClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.client.ChatWithStructuredOutput(ctx, messages, schema)
}

// Close implements Client
func (c *RateLimitedClient) Close() error {
	return c.client.Close()
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
