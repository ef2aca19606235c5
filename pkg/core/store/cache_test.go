package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_GetSetExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache[int](WithTTL(time.Minute), WithClock(clock.Now))
	defer c.Close()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 7)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.evictExpired()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_GetOrLoad_CoalescesConcurrentCallers(t *testing.T) {
	c := NewCache[string]()
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "dataset", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "AAPL", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "dataset", r)
	}

	// Served from cache afterwards.
	_, err := c.GetOrLoad(context.Background(), "AAPL", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().Loads)
}

func TestCache_GetOrLoad_ErrorsAreNotCached(t *testing.T) {
	c := NewCache[int]()
	defer c.Close()

	boom := errors.New("upstream down")
	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCache_GetOrLoad_CallerCancellation(t *testing.T) {
	c := NewCache[int]()
	defer c.Close()

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetOrLoad(ctx, "slow", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKey_String(t *testing.T) {
	k := Key{Ticker: " aapl ", TaxonomyID: "us-gaap:Revenues", Period: "2024-Q4", Frequency: "Quarterly", FilingID: "0000320193-24-000123"}
	assert.Equal(t, "AAPL|us-gaap:Revenues|2024-Q4|quarterly|0000320193-24-000123|", k.String())
	assert.Equal(t, "dataset|MSFT", DatasetKey("msft"))
}
