package ports

import "context"

// SequenceCounter allocates sequence numbers for logical groups.
// A counter instance is scoped to one run; numbers for a group start at 1,
// are strictly increasing and are never reused, whichever session asks.
type SequenceCounter interface {
	// Next increments the counter for group and returns the post-increment value.
	Next(ctx context.Context, group string) (int64, error)
}
