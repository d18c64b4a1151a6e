package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachVisitsEveryIndex(t *testing.T) {
	for _, jobs := range []int{1, 3, 0} {
		seen := make([]int32, 50)
		err := ForEach(context.Background(), len(seen), jobs, func(_ context.Context, i int) error {
			atomic.AddInt32(&seen[i], 1)
			return nil
		})
		require.NoError(t, err)
		for i, c := range seen {
			assert.Equal(t, int32(1), c, "index %d with n_jobs=%d", i, jobs)
		}
	}
}

func TestForEachRespectsLimit(t *testing.T) {
	var running, peak int32
	err := ForEach(context.Background(), 40, 2, func(_ context.Context, i int) error {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	err := ForEach(context.Background(), 1000, 1, func(_ context.Context, i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, atomic.LoadInt32(&calls), int32(1000))
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 10, 2, func(_ context.Context, i int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelizeWithThreshold(t *testing.T) {
	var total int64
	ParallelizeWithThreshold(1000, 10, func(start, end int) {
		var local int64
		for i := start; i < end; i++ {
			local += int64(i)
		}
		atomic.AddInt64(&total, local)
	})
	assert.Equal(t, int64(999*1000/2), total)

	var calls int32
	ParallelizeWithThreshold(5, 10, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 5, end)
	})
	assert.Equal(t, int32(1), calls)
}
