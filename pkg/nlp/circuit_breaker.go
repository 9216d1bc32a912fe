package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/graphquery/pkg/alert"
	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/types"
)

// CircuitBreakerClient wraps a Client with circuit breaking logic
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
	name   string
}

// NewCircuitBreakerClient creates a new circuit breaker client.
// The alerter is notified every time the breaker opens.
func NewCircuitBreakerClient(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, name string, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		// Cancelled calls say nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil || isCancellation(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if to != gobreaker.StateOpen || alerter == nil {
				return
			}
			msg := fmt.Sprintf("Circuit Breaker '%s' changed status from %s to %s. Too many failures detected.", name, from, to)
			if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
				logger.Error("Failed to send circuit breaker alert", "name", name, "error", err)
			}
		},
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
		name:   name,
	}
}

// Chat implements Client
func (c *CircuitBreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.Chat(ctx, messages)
	})
}

// ChatWithStructuredOutput implements Client
func (c *CircuitBreakerClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

// State reports the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

// Close implements Client
func (c *CircuitBreakerClient) Close() error {
	return c.client.Close()
}

func (c *CircuitBreakerClient) execute(call func() (*types.Response, error)) (*types.Response, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return resp.(*types.Response), nil
}
