package memory

import (
	"context"
	"sync"
)

// Counter implements ports.SequenceCounter in memory.
// Safe for concurrent use; one instance covers one run.
type Counter struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewCounter creates a new in-memory counter.
func NewCounter() *Counter {
	return &Counter{
		last: make(map[string]int64),
	}
}

// Next increments the counter for group and returns the new value.
func (c *Counter) Next(ctx context.Context, group string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[group]++
	return c.last[group], nil
}

// Snapshot returns a copy of the last value assigned per group.
func (c *Counter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
