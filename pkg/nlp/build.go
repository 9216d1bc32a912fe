package nlp

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/soundprediction/graphquery/pkg/alert"
	"github.com/soundprediction/graphquery/pkg/config"
)

// Deps are the collaborators Build wires into the client stack.
type Deps struct {
	Logger  *slog.Logger
	Alerter alert.Alerter
	// Base replaces the OpenAI client; tests use it to inject a fake model.
	Base Client
}

// Stack is a composed client together with its usage tracker.
type Stack struct {
	Client
	// Tracker is nil when telemetry is disabled.
	Tracker *ParquetTokenTracker
}

// Build composes the client decorators from configuration.
// From the outside in: token tracking, response cache, circuit breaker,
// retry, rate limit, then the model itself. Closing the stack closes every layer.
func Build(cfg *config.Config, deps Deps) (*Stack, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alerter := deps.Alerter
	if alerter == nil {
		alerter = alert.New(cfg.Alert)
	}

	client := deps.Base
	if client == nil {
		if cfg.NLP.Provider != "" && cfg.NLP.Provider != "openai" {
			return nil, fmt.Errorf("unsupported nlp provider %q", cfg.NLP.Provider)
		}
		c := Config{Model: cfg.NLP.Model, BaseURL: cfg.NLP.BaseURL}
		temperature := cfg.NLP.Temperature
		c.Temperature = &temperature
		if cfg.NLP.MaxTokens > 0 {
			maxTokens := cfg.NLP.MaxTokens
			c.MaxTokens = &maxTokens
		}
		openaiClient, err := NewOpenAIClient(cfg.NLP.APIKey, c)
		if err != nil {
			return nil, err
		}
		client = openaiClient
	}

	if cfg.RateLimit.Enabled {
		client = NewRateLimitedClient(client, cfg.RateLimit)
	}
	client = NewRetryClient(client, RetryConfigFrom(cfg.Retry)).WithLogger(logger)
	if cfg.CircuitBreaker.Enabled {
		client = NewCircuitBreakerClient(client, cfg.CircuitBreaker, alerter, "llm-"+cfg.NLP.Model, logger)
	}
	if cfg.Cache.Enabled {
		cached, err := NewCachingClient(client, CacheOptions{
			Dir:    cfg.CachePath(),
			TTL:    time.Duration(cfg.Cache.TTLHours) * time.Hour,
			Model:  cfg.NLP.Model,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		client = cached
	}

	stack := &Stack{Client: client}
	if cfg.Telemetry.Enabled && cfg.Telemetry.ParquetPath != "" {
		tracker, err := NewTokenTracker(filepath.Join(cfg.Telemetry.ParquetPath, "tokens"))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		stack.Tracker = tracker
		stack.Client = NewTokenTrackingClient(client, tracker, logger)
	}
	return stack, nil
}
