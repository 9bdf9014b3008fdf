package signed

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

// DefaultRevocationMaxAge is how old the cached revocation list may get
// before a validation refreshes it synchronously.
const DefaultRevocationMaxAge = 30 * time.Second

// DefaultFetchTimeout bounds a single revocation list fetch. A validation
// blocked on the refresh fails closed after at most this long.
const DefaultFetchTimeout = 10 * time.Second

// Engine validates self-contained signed tokens. Each validation walks a
// fixed order: signature, expiry, revocation. The first two need no I/O;
// only the revocation check consults shared state, through a small cached
// list of per-identity cutoffs.
type Engine struct {
	issuer       *Issuer
	backend      storage.Backend
	log          logger.Logger
	maxAge       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu          sync.RWMutex
	cutoffs     map[string]time.Time
	lastRefresh time.Time
	loaded      bool

	group singleflight.Group
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRevocationMaxAge overrides the revocation list staleness bound.
func WithRevocationMaxAge(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.maxAge = d
	}
}

// WithFetchTimeout overrides the revocation list fetch timeout.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}

// withClock overrides the engine's clock, for tests.
func withClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine issuing and validating tokens with issuer's
// key, checking revocations against backend.
func NewEngine(issuer *Issuer, backend storage.Backend, log logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		issuer:       issuer,
		backend:      backend,
		log:          log.WithComponent("revocation_engine"),
		maxAge:       DefaultRevocationMaxAge,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		cutoffs:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Issue mints a signed token for owner.
func (e *Engine) Issue(owner string) (string, time.Time, error) {
	return e.issuer.Issue(owner)
}

// Validate checks raw through the fixed decision order and returns the
// owner identity on allow. Every failure denies with a precise reason and
// never grants on ambiguity.
func (e *Engine) Validate(ctx context.Context, raw string) (string, error) {
	tok, err := e.issuer.Parse(raw)
	if err != nil {
		metrics.IncrCounter([]string{"signed", "bad_signature"}, 1)
		return "", err
	}

	if e.now().After(tok.ExpiresAt) {
		metrics.IncrCounter([]string{"signed", "expired"}, 1)
		return "", cred.ErrExpired
	}

	cutoff, found, err := e.revocationCutoff(ctx, tok.Owner)
	if err != nil {
		return "", cred.ErrStoreUnavailable
	}
	// Revocation is retroactive only to issuance time: a token issued at
	// or after the cutoff stays valid, so re-issuing after a logout works
	// without touching the list again.
	if found && tok.IssuedAt.Before(cutoff) {
		metrics.IncrCounter([]string{"signed", "revoked_denial"}, 1)
		return "", cred.ErrRevoked
	}
	return tok.Owner, nil
}

// Revoke raises owner's revocation cutoff to now, invalidating every
// token issued before this moment, and refreshes the local list so the
// revocation is observable on this replica immediately.
func (e *Engine) Revoke(ctx context.Context, owner string) error {
	if err := e.backend.PutRevocation(ctx, owner, e.now()); err != nil {
		return err
	}
	return e.refresh(ctx)
}

// revocationCutoff returns owner's cutoff from the cached list,
// synchronously refreshing the list when it is older than maxAge. On a
// refresh failure a previously loaded list keeps serving
// (stale-but-available, mirroring the token cache); with nothing ever
// loaded the check fails closed.
func (e *Engine) revocationCutoff(ctx context.Context, owner string) (time.Time, bool, error) {
	e.mu.RLock()
	loaded := e.loaded
	fresh := e.now().Sub(e.lastRefresh) < e.maxAge
	e.mu.RUnlock()

	if !loaded || !fresh {
		if err := e.refresh(ctx); err != nil {
			if !loaded {
				return time.Time{}, false, err
			}
			e.log.Warn("serving stale revocation list", logger.Err(err))
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	cutoff, ok := e.cutoffs[owner]
	return cutoff, ok, nil
}

func (e *Engine) refresh(ctx context.Context) error {
	_, err, _ := e.group.Do("refresh", func() (any, error) {
		// Detached from the caller but bounded by the engine's own
		// timeout, like the token cache refresh: shared by concurrent
		// validations, and never allowed to hang the request path.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fetchTimeout)
		defer cancel()

		entries, err := e.backend.FetchRevocations(fetchCtx)
		if err != nil {
			return nil, err
		}

		cutoffs := make(map[string]time.Time, len(entries))
		for _, entry := range entries {
			// The store already keeps the maximum per owner; keep it
			// here too in case a backend returns duplicates.
			if current, ok := cutoffs[entry.Owner]; !ok || entry.InvalidBefore.After(current) {
				cutoffs[entry.Owner] = entry.InvalidBefore
			}
		}

		e.mu.Lock()
		e.cutoffs = cutoffs
		e.lastRefresh = e.now()
		e.loaded = true
		e.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		metrics.IncrCounter([]string{"signed", "revocation_refresh_failure"}, 1)
		e.log.Error("revocation list refresh failed", logger.Err(err))
		return err
	}
	metrics.IncrCounter([]string{"signed", "revocation_refresh_success"}, 1)
	return nil
}
