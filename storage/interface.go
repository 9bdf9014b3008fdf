package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/nutrilog/gatekeeper/cred"
)

// Backend is the narrow client interface to the credential store.
//
// The design assumes a single logical writer (the admin mutation service,
// handling one call at a time). Backends do not implement optimistic
// concurrency control; concurrent admin writers are an operational
// constraint, not a protocol guarantee.
type Backend interface {
	// FetchAll returns every credential record in the store. A transport
	// error, permission error or malformed stored content returns an
	// *UnavailableError; callers can always distinguish "store is empty"
	// from "store could not be read".
	FetchAll(ctx context.Context) ([]cred.Record, error)

	// AppendOrUpdate persists a record, replacing any existing record for
	// the same token. The write is atomic from the caller's perspective.
	AppendOrUpdate(ctx context.Context, rec cred.Record) error

	// FetchRevocations returns the identity-keyed revocation list.
	FetchRevocations(ctx context.Context) ([]cred.RevocationEntry, error)

	// PutRevocation inserts or raises the revocation cutoff for owner.
	// Cutoffs are monotonic: an earlier timestamp than the stored one is
	// a no-op.
	PutRevocation(ctx context.Context, owner string, invalidBefore time.Time) error
}

// UnavailableError reports that the store could not be read or written.
// Malformed distinguishes store-integrity failures (bad stored content)
// from transient transport failures, for logging and alerting.
type UnavailableError struct {
	Op        string
	Err       error
	Malformed bool
}

func (e *UnavailableError) Error() string {
	kind := "transport"
	if e.Malformed {
		kind = "integrity"
	}
	return fmt.Sprintf("credential store unavailable (%s, %s): %v", e.Op, kind, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, cred.ErrStoreUnavailable) hold for every
// UnavailableError regardless of its cause.
func (e *UnavailableError) Is(target error) bool {
	return target == cred.ErrStoreUnavailable
}
