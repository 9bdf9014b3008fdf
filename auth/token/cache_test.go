package token

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
	"github.com/nutrilog/gatekeeper/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

// countingBackend counts store fetches so tests can assert exactly when a
// refresh reached the store.
type countingBackend struct {
	*storage.InmemBackend
	fetches atomic.Int64

	mu      sync.Mutex
	blockCh chan struct{}
}

func newCountingBackend() *countingBackend {
	return &countingBackend{InmemBackend: storage.NewInmemBackend()}
}

func (b *countingBackend) block(ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockCh = ch
}

func (b *countingBackend) FetchAll(ctx context.Context) ([]cred.Record, error) {
	b.fetches.Add(1)
	b.mu.Lock()
	ch := b.blockCh
	b.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return b.InmemBackend.FetchAll(ctx)
}

func TestCache_RefreshAndLookup(t *testing.T) {
	backend := newCountingBackend()
	ctx := context.Background()

	rec := cred.Record{Token: "tkn_a", Owner: "a@example.com", IssuedAt: time.Now().UTC(), Status: cred.StatusActive}
	require.NoError(t, backend.AppendOrUpdate(ctx, rec))

	cache := NewCache(backend, testLogger())

	_, ok := cache.Lookup("tkn_a")
	assert.False(t, ok, "cold cache must miss")

	require.NoError(t, cache.Refresh(ctx))

	got, ok := cache.Lookup("tkn_a")
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.False(t, cache.LastRefresh().IsZero())
}

func TestCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	backend := newCountingBackend()
	ctx := context.Background()

	rec := cred.Record{Token: "tkn_a", Owner: "a@example.com", Status: cred.StatusActive}
	require.NoError(t, backend.AppendOrUpdate(ctx, rec))

	cache := NewCache(backend, testLogger())
	require.NoError(t, cache.Refresh(ctx))
	last := cache.LastRefresh()

	backend.FailFetch(true)
	err := cache.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, cred.ErrStoreUnavailable)

	// Stale-but-available: the prior snapshot still answers lookups.
	_, ok := cache.Lookup("tkn_a")
	assert.True(t, ok)
	assert.True(t, cache.LastRefresh().Equal(last))
}

func TestCache_ConcurrentRefreshCollapses(t *testing.T) {
	backend := newCountingBackend()
	cache := NewCache(backend, testLogger())

	release := make(chan struct{})
	backend.block(release)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.Refresh(context.Background())
		}()
	}

	// Let the callers pile onto the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), backend.fetches.Load())
}

func TestCache_RefreshSurvivesCallerCancellation(t *testing.T) {
	backend := newCountingBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache := NewCache(backend, testLogger())

	// The shared fetch runs under the cache's own timeout, so an already
	// abandoned caller still produces a usable snapshot.
	require.NoError(t, cache.Refresh(ctx))
	assert.False(t, cache.LastRefresh().IsZero())
}
