package ports

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSequenceCounterContract runs a suite of tests to verify that a SequenceCounter
// implementation adheres to the defined interface contract.
// The counter must be fresh (no group used yet).
func RunSequenceCounterContract(t *testing.T, counter SequenceCounter) {
	ctx := context.Background()

	t.Run("Starts At One", func(t *testing.T) {
		n, err := counter.Next(ctx, "contract-first")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Strictly Increasing", func(t *testing.T) {
		var last int64
		for i := 0; i < 5; i++ {
			n, err := counter.Next(ctx, "contract-seq")
			require.NoError(t, err)
			assert.Equal(t, last+1, n)
			last = n
		}
	})

	t.Run("Groups Are Independent", func(t *testing.T) {
		a, err := counter.Next(ctx, "contract-a")
		require.NoError(t, err)
		b, err := counter.Next(ctx, "contract-b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), a)
		assert.Equal(t, int64(1), b)
	})

	t.Run("Concurrent Callers Never Share A Number", func(t *testing.T) {
		const workers, perWorker = 8, 25

		var (
			mu   sync.Mutex
			seen []int64
			wg   sync.WaitGroup
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					n, err := counter.Next(ctx, "contract-concurrent")
					assert.NoError(t, err)
					mu.Lock()
					seen = append(seen, n)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
		require.Len(t, seen, workers*perWorker)
		for i, n := range seen {
			assert.Equal(t, int64(i+1), n, "sequence must have no gaps or repeats")
		}
	})
}
