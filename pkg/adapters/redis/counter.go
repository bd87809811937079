// Package redis provides a Redis-backed sequence counter so that several
// capture processes working on the same run share one numbering space.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the counter.
const DefaultPrefix = "capture:"

// Counter implements ports.SequenceCounter using Redis INCR.
type Counter struct {
	client *backend.Client
	prefix string
	runID  string
	ttl    time.Duration
}

// Option configures the Counter.
type Option func(*Counter)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Counter) {
		c.prefix = prefix
	}
}

// WithTTL expires the counters of a run after ttl of inactivity.
// Zero (the default) keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Counter) {
		c.ttl = ttl
	}
}

// New creates a counter for runID with its own client.
func New(address, password string, db int, runID string, opts ...Option) *Counter {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, runID, opts...)
}

// NewFromClient creates a counter for runID from an existing client.
func NewFromClient(client *backend.Client, runID string, opts ...Option) *Counter {
	c := &Counter{
		client: client,
		prefix: DefaultPrefix,
		runID:  runID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Counter) key(group string) string {
	return c.prefix + c.runID + ":seq:" + group
}

// Next atomically increments the group counter of the run.
func (c *Counter) Next(ctx context.Context, group string) (int64, error) {
	key := c.key(group)

	if c.ttl == 0 {
		n, err := c.client.Incr(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to increment %s: %w", key, err)
		}
		return n, nil
	}

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Ping verifies the connection, so a misconfigured backend fails at startup
// instead of on the first submission.
func (c *Counter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *Counter) Close() error {
	return c.client.Close()
}
