package accounts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*HierarchyCache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHierarchyCache(client, time.Minute, nil), mr, client
}

func countingLoader(calls *int32, accounts []Account) func(context.Context) ([]Account, error) {
	return func(context.Context) ([]Account, error) {
		atomic.AddInt32(calls, 1)
		return accounts, nil
	}
}

func TestHierarchyCacheHitAndInvalidate(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32
	chart := []Account{{ID: 1, TenantID: "t1", Code: "1000", Level: 1, IsActive: true}}

	first, err := cache.Load(ctx, "t1", countingLoader(&calls, chart))
	require.NoError(t, err)
	assert.Equal(t, chart, first)
	assert.True(t, mr.Exists("ledger:accounts:hierarchy:t1:1"))

	second, err := cache.Load(ctx, "t1", countingLoader(&calls, nil))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "1000", second[0].Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, cache.Invalidate(ctx, "t1"))
	ver, err := cache.Version(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)

	_, err = cache.Load(ctx, "t1", countingLoader(&calls, chart))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHierarchyCacheTenantsAreIsolated(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32

	_, err := cache.Load(ctx, "t1", countingLoader(&calls, []Account{{ID: 1}}))
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "t2"))

	_, err = cache.Load(ctx, "t1", countingLoader(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHierarchyCachePublishesInvalidation(t *testing.T) {
	cache, _, client := newTestCache(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, InvalidationChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "t1"))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "t1:1", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation message")
	}
}

func TestHierarchyCacheSharesConcurrentMisses(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) ([]Account, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []Account{{ID: 1}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := cache.Load(ctx, "t1", loader)
			assert.NoError(t, err)
			assert.Len(t, out, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHierarchyCacheCanceledCallerDoesNotFailOthers(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) ([]Account, error) {
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return []Account{{ID: 7}}, nil
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Load(firstCtx, "t1", loader)
		firstErr <- err
	}()
	<-started

	type result struct {
		accounts []Account
		err      error
	}
	second := make(chan result, 1)
	go func() {
		out, err := cache.Load(context.Background(), "t1", loader)
		second <- result{accounts: out, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.accounts, 1)
	assert.Equal(t, int64(7), res.accounts[0].ID)
	assert.True(t, mr.Exists("ledger:accounts:hierarchy:t1:1"))
}

func TestHierarchyCacheDegradesWhenRedisDown(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	mr.Close()
	var calls int32

	out, err := cache.Load(context.Background(), "t1", countingLoader(&calls, []Account{{ID: 3}}))
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Error(t, cache.Invalidate(context.Background(), "t1"))
}

func TestHierarchyCacheLoaderError(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	boom := errors.New("query failed")

	_, err := cache.Load(context.Background(), "t1", func(context.Context) ([]Account, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("ledger:accounts:hierarchy:t1:1"))
}

func TestHierarchyCacheNilClient(t *testing.T) {
	cache := NewHierarchyCache(nil, time.Minute, nil)
	var calls int32
	_, err := cache.Load(context.Background(), "t1", countingLoader(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
	assert.NoError(t, cache.Invalidate(context.Background(), "t1"))
}
