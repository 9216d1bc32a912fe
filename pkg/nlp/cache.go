package nlp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/soundprediction/graphquery/pkg/types"
)

// CachingClient memoizes completions in a badger store so repeated queries
// against the same index do not pay for identical prompts twice.
type CachingClient struct {
	client Client
	db     *badger.DB
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOptions configures a CachingClient.
type CacheOptions struct {
	Dir      string        // on-disk location; ignored when InMemory is set
	InMemory bool          // keep entries only for the lifetime of the process
	TTL      time.Duration // zero keeps entries forever
	Model    string        // part of every key so switching models misses
	Logger   *slog.Logger
}

// NewCachingClient opens the badger store and wraps client.
func NewCachingClient(client Client, opts CacheOptions) (*CachingClient, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open response cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingClient{
		client: client,
		db:     db,
		model:  opts.Model,
		ttl:    opts.TTL,
		logger: logger,
	}, nil
}

// Chat implements Client
func (c *CachingClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.cached(ctx, c.key(messages, false), func() (*types.Response, error) {
		return c.client.Chat(ctx, messages)
	})
}

// ChatWithStructuredOutput implements Client
func (c *CachingClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.cached(ctx, c.key(messages, true), func() (*types.Response, error) {
		return c.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

// Close closes the store and the wrapped client.
func (c *CachingClient) Close() error {
	return errors.Join(c.db.Close(), c.client.Close())
}

func (c *CachingClient) cached(ctx context.Context, key []byte, call func() (*types.Response, error)) (*types.Response, error) {
	if resp, ok := c.get(key); ok {
		c.logger.DebugContext(ctx, "LLM cache hit", "key", hex.EncodeToString(key[:6]))
		return resp, nil
	}

	resp, err := call()
	if err != nil {
		return nil, err
	}
	// Truncated or empty completions are not worth replaying
	if resp.Content != "" && resp.FinishReason != "length" {
		if err := c.put(key, resp); err != nil {
			c.logger.WarnContext(ctx, "Failed to store LLM response in cache", "error", err)
		}
	}
	return resp, nil
}

func (c *CachingClient) get(key []byte) (*types.Response, bool) {
	var resp types.Response
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &resp)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("Failed to read LLM response cache", "error", err)
		}
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (c *CachingClient) put(key []byte, resp *types.Response) error {
	stored := *resp
	stored.Cached = false
	val, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, val)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// key hashes the model, the structured flag and every message.
func (c *CachingClient) key(messages []types.Message, structured bool) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\x00structured=%t\x00", c.model, structured)
	for _, m := range messages {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", m.Role, len(m.Content), m.Content)
	}
	return h.Sum(nil)
}
