package cred

import (
	"time"
)

// Status is the authorization state of a credential record.
type Status string

const (
	// StatusActive marks a credential that grants access.
	StatusActive Status = "active"

	// StatusRevoked marks a credential that has been withdrawn. A revoked
	// record found in a stale snapshot is still trusted in the direction of
	// denial.
	StatusRevoked Status = "revoked"
)

// Record maps an opaque bearer token to its owner and authorization state.
// There is at most one active record per raw token.
type Record struct {
	// Token is the raw bearer token. It is visible in full only at
	// issuance; every read-side projection masks it.
	Token string

	// Owner is the identity the token authenticates as, typically an
	// email address.
	Owner string

	// IssuedAt is when the record was created. Legacy records imported
	// from the two-column store format carry a zero IssuedAt.
	IssuedAt time.Time

	// Status is the current authorization state.
	Status Status
}

// Active reports whether the record currently grants access.
func (r Record) Active() bool {
	return r.Status == StatusActive
}

// RevocationEntry invalidates every self-contained token issued to Owner
// strictly before InvalidBefore. Entries are monotonic: a later revocation
// never lowers the cutoff.
type RevocationEntry struct {
	Owner         string
	InvalidBefore time.Time
}

// Covers reports whether a token issued at issuedAt falls under this entry.
func (e RevocationEntry) Covers(issuedAt time.Time) bool {
	return issuedAt.Before(e.InvalidBefore)
}
