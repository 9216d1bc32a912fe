package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/soundprediction/graphquery/pkg/config"
	"github.com/soundprediction/graphquery/pkg/types"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay before the first retry (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 60 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigFrom converts the file configuration into a RetryConfig.
func RetryConfigFrom(cfg config.RetryConfig) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        cfg.MaxRetries,
		InitialDelay:      time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}
}

// RetryClient wraps an LLM client and adds retry logic with exponential backoff
type RetryClient struct {
	client Client
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryClient creates a new retry client wrapper
func NewRetryClient(client Client, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryClient{
		client: client,
		config: config,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger retry attempts are reported to.
func (r *RetryClient) WithLogger(logger *slog.Logger) *RetryClient {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Chat implements the Client interface with retry logic
func (r *RetryClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return r.do(ctx, func() (*types.Response, error) {
		return r.client.Chat(ctx, messages)
	})
}

// ChatWithStructuredOutput implements the Client interface with retry logic
func (r *RetryClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return r.do(ctx, func() (*types.Response, error) {
		return r.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

// Close implements the Client interface
func (r *RetryClient) Close() error {
	return r.client.Close()
}

func (r *RetryClient) do(ctx context.Context, call func() (*types.Response, error)) (*types.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.WarnContext(ctx, "Retrying LLM call",
				"attempt", attempt,
				"max_retries", r.config.MaxRetries,
				"delay", delay,
				"error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// calculateDelay returns InitialDelay * BackoffMultiplier^(attempt-1), capped at MaxDelay
func (r *RetryClient) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// retryablePatterns are lower-cased fragments of transient failure messages.
var retryablePatterns = []string{
	"500", "internal server error",
	"502", "bad gateway",
	"503", "service unavailable",
	"504", "gateway timeout",
	"timeout",
	"connection reset",
	"connection refused",
	"temporary failure",
	"rate limit",
	"too many requests",
	"429",
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) || errors.Is(err, ErrRateLimit) {
		return true
	}

	type httpStatusError interface {
		HTTPStatusCode() int
	}
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		if code >= 500 || code == http.StatusTooManyRequests {
			return true
		}
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
