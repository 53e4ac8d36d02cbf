package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTimeBounded_GetBeforeAndAfterTTL(t *testing.T) {
	clock := newTestClock()
	c := New[string, int]("test", time.Hour, zerolog.Nop(), WithClock(clock.Now))

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Minute)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on read")
}

func TestTimeBounded_GetNeverLoads(t *testing.T) {
	c := New[string, int]("test", time.Hour, zerolog.Nop())
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestTimeBounded_GetOrLoad_RefetchesOnceAfterExpiry(t *testing.T) {
	clock := newTestClock()
	c := New[string, int]("test", time.Hour, zerolog.Nop(), WithClock(clock.Now))
	ctx := context.Background()

	calls := 0
	loader := func(_ context.Context, key string) (int, error) {
		calls++
		return calls, nil
	}

	v, err := c.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, calls)

	clock.Advance(2 * time.Hour)
	v, err = c.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = c.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTimeBounded_GetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[string, int]("test", time.Hour, zerolog.Nop())
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, "k", func(context.Context, string) (int, error) {
		return 0, errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrLoad(ctx, "k", func(context.Context, string) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTimeBounded_GetOrLoad_SingleFlight(t *testing.T) {
	c := New[int, string]("test", time.Hour, zerolog.Nop())
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context, int) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "loaded", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(ctx, 1, loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let the goroutines pile up on the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "loaded", r)
	}
}

func TestTimeBounded_SweepRemovesOnlyExpired(t *testing.T) {
	clock := newTestClock()
	c := New[string, int]("test", time.Hour, zerolog.Nop(), WithClock(clock.Now))

	c.Put("old", 1)
	clock.Advance(45 * time.Minute)
	c.Put("new", 2)
	clock.Advance(30 * time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, 0, c.Sweep())
}

func TestTimeBounded_Evict(t *testing.T) {
	c := New[string, int]("test", time.Hour, zerolog.Nop())
	c.Put("a", 1)
	c.Evict("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, "test", c.Name())
}
