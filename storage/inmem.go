package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nutrilog/gatekeeper/cred"
)

// InmemBackend is an in-memory only Backend. It is useful for testing and
// development situations where the data is not expected to be durable.
type InmemBackend struct {
	mu          sync.RWMutex
	records     map[string]cred.Record
	revocations map[string]time.Time

	failFetch bool
	failWrite bool
}

var _ Backend = (*InmemBackend)(nil)

// NewInmemBackend creates an empty in-memory backend.
func NewInmemBackend() *InmemBackend {
	return &InmemBackend{
		records:     make(map[string]cred.Record),
		revocations: make(map[string]time.Time),
	}
}

// FailFetch toggles simulated read failures.
func (b *InmemBackend) FailFetch(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failFetch = fail
}

// FailWrite toggles simulated write failures.
func (b *InmemBackend) FailWrite(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWrite = fail
}

func (b *InmemBackend) FetchAll(ctx context.Context) ([]cred.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.failFetch {
		return nil, &UnavailableError{Op: "fetch_all", Err: errors.New("fetch failures enabled")}
	}

	records := make([]cred.Record, 0, len(b.records))
	for _, rec := range b.records {
		records = append(records, rec)
	}
	return records, nil
}

func (b *InmemBackend) AppendOrUpdate(ctx context.Context, rec cred.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failWrite {
		return &UnavailableError{Op: "append_or_update", Err: errors.New("write failures enabled")}
	}

	b.records[rec.Token] = rec
	return nil
}

func (b *InmemBackend) FetchRevocations(ctx context.Context) ([]cred.RevocationEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.failFetch {
		return nil, &UnavailableError{Op: "fetch_revocations", Err: errors.New("fetch failures enabled")}
	}

	entries := make([]cred.RevocationEntry, 0, len(b.revocations))
	for owner, cutoff := range b.revocations {
		entries = append(entries, cred.RevocationEntry{Owner: owner, InvalidBefore: cutoff})
	}
	return entries, nil
}

func (b *InmemBackend) PutRevocation(ctx context.Context, owner string, invalidBefore time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failWrite {
		return &UnavailableError{Op: "put_revocation", Err: errors.New("write failures enabled")}
	}

	if current, ok := b.revocations[owner]; ok && current.After(invalidBefore) {
		return nil
	}
	b.revocations[owner] = invalidBefore
	return nil
}
