package token

import (
	"context"
	"sync"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
	"github.com/nutrilog/gatekeeper/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a single store fetch. A miss-triggered
// refresh blocks the requesting call for at most this long before the
// validation fails closed.
const DefaultFetchTimeout = 10 * time.Second

// Cache is a per-process snapshot of the credential store. Lookups are
// pure reads against the current snapshot; Refresh replaces the snapshot
// wholesale on success and keeps the prior one on failure, so the cache
// is stale-but-available rather than unavailable.
type Cache struct {
	backend      storage.Backend
	log          logger.Logger
	fetchTimeout time.Duration

	mu          sync.RWMutex
	snapshot    map[string]cred.Record
	lastRefresh time.Time

	// Collapses concurrent refreshes into one store fetch. Concurrent
	// refreshes are idempotent: last snapshot write wins.
	group singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithFetchTimeout overrides the store fetch timeout.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

// NewCache creates an empty cache over backend. The first lookup will
// miss and force a refresh, so a cold replica needs no warm-up step.
func NewCache(backend storage.Backend, log logger.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		backend:      backend,
		log:          log.WithComponent("token_cache"),
		fetchTimeout: DefaultFetchTimeout,
		snapshot:     make(map[string]cred.Record),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the record for token from the current snapshot. It never
// blocks on I/O.
func (c *Cache) Lookup(token string) (cred.Record, bool) {
	c.mu.RLock()
	rec, ok := c.snapshot[token]
	c.mu.RUnlock()

	if ok {
		metrics.IncrCounter([]string{"token_cache", "hit"}, 1)
	} else {
		metrics.IncrCounter([]string{"token_cache", "miss"}, 1)
	}
	return rec, ok
}

// LastRefresh returns the time of the last successful refresh.
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Refresh fetches the full record set and replaces the snapshot. On
// failure the prior snapshot stays in place and the error is returned for
// the caller to log or count.
//
// The fetch itself runs detached from the caller's context, under the
// cache's own timeout: the refresh is shared by every concurrent caller,
// and one abandoned request must neither cancel it for the others nor
// leave a partially-updated snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		records, err := c.backend.FetchAll(fetchCtx)
		if err != nil {
			return nil, err
		}

		snapshot := make(map[string]cred.Record, len(records))
		for _, rec := range records {
			snapshot[rec.Token] = rec
		}

		c.mu.Lock()
		c.snapshot = snapshot
		c.lastRefresh = time.Now()
		c.mu.Unlock()

		return nil, nil
	})
	if err != nil {
		metrics.IncrCounter([]string{"token_cache", "refresh_failure"}, 1)
		c.log.Error("token cache refresh failed", logger.Err(err))
		return err
	}

	metrics.IncrCounter([]string{"token_cache", "refresh_success"}, 1)
	return nil
}

// Run refreshes the cache on a fixed interval until ctx is done. The
// interval refresh only amortizes staleness; correctness never depends on
// it because misses force their own refresh.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are already counted and logged by Refresh;
			// the next tick or the next miss retries.
			_ = c.Refresh(ctx)
		}
	}
}
