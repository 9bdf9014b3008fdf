package token

import (
	"context"
	"net/http"
	"strings"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
)

const (
	bearerPrefix = "Bearer "

	// negativeCacheSize bounds the set of recently-unknown tokens kept to
	// damp refresh storms from repeated garbage tokens.
	negativeCacheSize = 1024

	// negativeCacheTTL bounds how long a confirmed-unknown token can skip
	// the forced refresh.
	negativeCacheTTL = 10 * time.Second
)

// Validator renders allow/deny decisions for bearer credentials against
// the token cache, forcing one synchronous refresh per miss.
type Validator struct {
	cache    *Cache
	log      logger.Logger
	negative *expirable.LRU[string, time.Time]
	now      func() time.Time
}

// NewValidator creates a Validator over cache.
func NewValidator(cache *Cache, log logger.Logger) *Validator {
	return &Validator{
		cache:    cache,
		log:      log.WithComponent("validator"),
		negative: expirable.NewLRU[string, time.Time](negativeCacheSize, nil, negativeCacheTTL),
		now:      time.Now,
	}
}

// ExtractBearer returns the bearer token from an Authorization header.
// Anything that is not exactly the Bearer scheme is treated as no
// credential at all, never as a candidate token.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", cred.ErrMissingCredential
	}
	tok, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || tok == "" || strings.ContainsAny(tok, " \t") {
		return "", cred.ErrMissingCredential
	}
	return tok, nil
}

// Validate extracts the bearer credential from r and validates it,
// returning the owner identity on allow.
func (v *Validator) Validate(ctx context.Context, r *http.Request) (string, error) {
	tok, err := ExtractBearer(r)
	if err != nil {
		return "", err
	}
	return v.ValidateToken(ctx, tok)
}

// ValidateToken renders the allow/deny decision for a raw token.
//
// A hit on a revoked record denies without refreshing: a stale snapshot
// can hide a new credential but cannot fabricate a revocation, so a
// present revoked marker is trusted. A miss forces exactly one refresh
// and one retry; every failure denies.
func (v *Validator) ValidateToken(ctx context.Context, tok string) (string, error) {
	if rec, ok := v.cache.Lookup(tok); ok {
		return v.decide(rec)
	}

	// A negative entry skips the store only once a refresh NEWER than the
	// entry has confirmed the token is still absent. An unconfirmed entry
	// never suppresses the forced refresh, so a credential registered
	// right after a failed attempt is allowed on the very next try.
	if recordedAt, ok := v.negative.Get(tok); ok && v.cache.LastRefresh().After(recordedAt) {
		metrics.IncrCounter([]string{"validator", "negative_hit"}, 1)
		return "", cred.ErrUnknownCredential
	}

	if err := v.cache.Refresh(ctx); err != nil {
		return "", cred.ErrStoreUnavailable
	}

	if rec, ok := v.cache.Lookup(tok); ok {
		v.negative.Remove(tok)
		return v.decide(rec)
	}

	v.negative.Add(tok, v.now())
	return "", cred.ErrUnknownCredential
}

func (v *Validator) decide(rec cred.Record) (string, error) {
	if rec.Active() {
		return rec.Owner, nil
	}
	metrics.IncrCounter([]string{"validator", "revoked_denial"}, 1)
	return "", cred.ErrRevoked
}
