package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesWork(t *testing.T) {
	var mu sync.Mutex
	var got []int

	pool := NewKeyedPool(4, 16, func(_ context.Context, n int) error {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(fmt.Sprintf("key-%d", i), i))
	}

	require.NoError(t, pool.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 10)

	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestPoolSameKeyPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	perKey := make(map[string][]int)

	pool := NewKeyedPool(8, 64, func(_ context.Context, item [2]any) error {
		key := item[0].(string)
		seq := item[1].(int)
		mu.Lock()
		perKey[key] = append(perKey[key], seq)
		mu.Unlock()
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))

	keys := []string{"conv-a", "conv-b", "conv-c"}
	for seq := 0; seq < 20; seq++ {
		for _, key := range keys {
			require.NoError(t, pool.Submit(key, [2]any{key, seq}))
		}
	}

	require.NoError(t, pool.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		require.Len(t, perKey[key], 20, "key %s", key)
		for seq := 0; seq < 20; seq++ {
			assert.Equal(t, seq, perKey[key][seq], "key %s out of order", key)
		}
	}
}

func TestPoolQueueFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewKeyedPool(1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the worker, second fills the queue; the
	// partition then rejects further work.
	require.NoError(t, pool.Submit("k", 1))

	var errQueueFull bool
	for i := 0; i < 10; i++ {
		if err := pool.Submit("k", i); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			errQueueFull = true
			break
		}
	}
	assert.True(t, errQueueFull)
	assert.Positive(t, pool.Stats().Dropped)

	close(block)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolLifecycleErrors(t *testing.T) {
	pool := NewKeyedPool(1, 1, func(_ context.Context, _ int) error { return nil })

	assert.ErrorIs(t, pool.Submit("k", 1), ErrPoolNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit("k", 1), ErrPoolStopped)

	// Stopping twice is a no-op.
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPoolNilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewKeyedPool[int](1, 1, nil)
	})
}

func TestPoolCountsFailures(t *testing.T) {
	pool := NewKeyedPool(2, 8, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return fmt.Errorf("even numbers fail")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(fmt.Sprintf("k%d", i), i))
	}
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(6), stats.Processed)
	assert.Equal(t, int64(3), stats.Failed)
}
