package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultQuery is the query a run issues when none is given.
const DefaultQuery = "What is H2@home used for?"

// Config holds all configuration for the application
type Config struct {
	// Project layout configuration
	Project ProjectConfig `mapstructure:"project" yaml:"project"`

	// Query configuration
	Query QueryConfig `mapstructure:"query" yaml:"query"`

	// Search tuning
	Search SearchConfig `mapstructure:"search" yaml:"search"`

	// NLP configuration
	NLP NLPConfig `mapstructure:"nlp" yaml:"nlp"`

	// Retry configuration for LLM calls
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// RateLimit configuration for LLM calls
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert" yaml:"alert"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Log configuration
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// ProjectConfig locates the index inputs and the query outputs.
type ProjectConfig struct {
	Root       string `mapstructure:"root" yaml:"root"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`   // relative to root unless absolute
	QueriesDir string `mapstructure:"queries_dir" yaml:"queries_dir"` // relative to root unless absolute
}

// InputPath returns the directory holding the index parquet files.
func (p ProjectConfig) InputPath() string {
	return resolve(p.Root, p.OutputDir)
}

// QueriesPath returns the directory result folders are created in.
func (p ProjectConfig) QueriesPath() string {
	return resolve(p.Root, p.QueriesDir)
}

func resolve(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// QueryConfig holds the per-run query parameters
type QueryConfig struct {
	Text                      string   `mapstructure:"text" yaml:"text"`
	Modes                     []string `mapstructure:"modes" yaml:"modes"`
	CommunityLevel            int      `mapstructure:"community_level" yaml:"community_level"`
	ResponseType              string   `mapstructure:"response_type" yaml:"response_type"`
	DynamicCommunitySelection bool     `mapstructure:"dynamic_community_selection" yaml:"dynamic_community_selection"`
	Concurrency               int      `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout                   int      `mapstructure:"timeout" yaml:"timeout"` // in seconds, 0 disables
}

// SearchConfig holds tuning knobs for the search engine
type SearchConfig struct {
	MaxContextTokens   int     `mapstructure:"max_context_tokens" yaml:"max_context_tokens"`
	TopKTextUnits      int     `mapstructure:"top_k_text_units" yaml:"top_k_text_units"`
	TopKEntities       int     `mapstructure:"top_k_entities" yaml:"top_k_entities"`
	TopKRelationships  int     `mapstructure:"top_k_relationships" yaml:"top_k_relationships"`
	CommunityProp      float64 `mapstructure:"community_prop" yaml:"community_prop"`
	TextUnitProp       float64 `mapstructure:"text_unit_prop" yaml:"text_unit_prop"`
	MapBatchTokens     int     `mapstructure:"map_batch_tokens" yaml:"map_batch_tokens"`
	MapConcurrency     int     `mapstructure:"map_concurrency" yaml:"map_concurrency"`
	ReduceMaxTokens    int     `mapstructure:"reduce_max_tokens" yaml:"reduce_max_tokens"`
	RatingThreshold    int     `mapstructure:"rating_threshold" yaml:"rating_threshold"`
	MaxSelectionLevels int     `mapstructure:"max_selection_levels" yaml:"max_selection_levels"`
}

// NLPConfig holds configuration for the chat model
type NLPConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"` // openai (or any OpenAI-compatible service)
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RetryConfig holds configuration for LLM retries
type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// RateLimitConfig holds configuration for client side request pacing
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests" yaml:"max_requests"`
	Interval         int     `mapstructure:"interval" yaml:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout" yaml:"timeout"`   // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio" yaml:"ready_to_trip_ratio"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from" yaml:"from"`
	To       []string `mapstructure:"to" yaml:"to"`
}

// CacheConfig holds configuration for the LLM response cache
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir      string `mapstructure:"dir" yaml:"dir"`             // relative to project root unless absolute
	TTLHours int    `mapstructure:"ttl_hours" yaml:"ttl_hours"` // 0 keeps entries forever
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ParquetPath string `mapstructure:"parquet_path" yaml:"parquet_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Mode string `mapstructure:"mode" yaml:"mode"` // gin mode: debug, release, test
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// A .env next to the project behaves like exported variables
	loadDotEnv(config.Project.Root)

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Project defaults
	viper.SetDefault("project.root", ".")
	viper.SetDefault("project.output_dir", "output")
	viper.SetDefault("project.queries_dir", "queries")

	// Query defaults
	viper.SetDefault("query.text", DefaultQuery)
	viper.SetDefault("query.modes", []string{"basic", "local", "global"})
	viper.SetDefault("query.community_level", 2)
	viper.SetDefault("query.response_type", "Multiple Paragraphs")
	viper.SetDefault("query.dynamic_community_selection", false)
	viper.SetDefault("query.concurrency", 1)
	viper.SetDefault("query.timeout", 0)

	// Search defaults
	viper.SetDefault("search.max_context_tokens", 12000)
	viper.SetDefault("search.top_k_text_units", 10)
	viper.SetDefault("search.top_k_entities", 10)
	viper.SetDefault("search.top_k_relationships", 10)
	viper.SetDefault("search.community_prop", 0.15)
	viper.SetDefault("search.text_unit_prop", 0.5)
	viper.SetDefault("search.map_batch_tokens", 8000)
	viper.SetDefault("search.map_concurrency", 4)
	viper.SetDefault("search.reduce_max_tokens", 8000)
	viper.SetDefault("search.rating_threshold", 1)
	viper.SetDefault("search.max_selection_levels", 4)

	// NLP defaults
	viper.SetDefault("nlp.provider", "openai")
	viper.SetDefault("nlp.model", "gpt-4o-mini")
	viper.SetDefault("nlp.temperature", 0.0)
	viper.SetDefault("nlp.max_tokens", 2000)

	// Retry defaults
	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.initial_delay_ms", 1000)
	viper.SetDefault("retry.max_delay_ms", 60000)
	viper.SetDefault("retry.backoff_multiplier", 2.0)

	// Rate limit defaults
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.requests_per_minute", 60)
	viper.SetDefault("rate_limit.burst", 1)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("cache.ttl_hours", 0)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", true)
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.graphquery/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// loadDotEnv loads <root>/.env without overriding variables already set.
func loadDotEnv(root string) {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// API key: GraphRAG projects keep it under GRAPHRAG_API_KEY
	for _, name := range []string{"GRAPHQUERY_API_KEY", "GRAPHRAG_API_KEY", "OPENAI_API_KEY"} {
		if apiKey := os.Getenv(name); apiKey != "" && config.NLP.APIKey == "" {
			config.NLP.APIKey = apiKey
		}
	}
	if model := os.Getenv("GRAPHQUERY_MODEL"); model != "" {
		config.NLP.Model = model
	}
	if baseURL := os.Getenv("GRAPHQUERY_BASE_URL"); baseURL != "" {
		config.NLP.BaseURL = baseURL
	}

	// Project layout
	if root := os.Getenv("GRAPHQUERY_ROOT"); root != "" {
		config.Project.Root = root
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
		fmt.Sscanf(port, "%d", &config.Server.Port)
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + strings.Repeat("*", 4) + s[len(s)-4:]
	}
	c.NLP.APIKey = mask(c.NLP.APIKey)
	c.Alert.Password = mask(c.Alert.Password)
	return c
}

// CachePath returns the directory of the LLM response cache.
func (c Config) CachePath() string {
	return resolve(c.Project.Root, c.Cache.Dir)
}
