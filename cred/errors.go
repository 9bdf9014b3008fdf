package cred

import "errors"

var (
	// ErrMissingCredential is returned when a request carries no bearer
	// credential, or the Authorization header is not of the Bearer scheme.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnknownCredential is returned when a token is absent from the
	// credential store even after a forced cache refresh.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrRevoked is returned when a credential has been withdrawn.
	ErrRevoked = errors.New("credential revoked")

	// ErrExpired is returned when a signed token is past its expiry.
	ErrExpired = errors.New("credential expired")

	// ErrBadSignature is returned when a signed token is malformed or its
	// signature does not verify.
	ErrBadSignature = errors.New("bad token signature")

	// ErrStoreUnavailable is returned when the credential store cannot be
	// read. Validation fails closed on it.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrForbidden is returned when an admin call fails either factor of
	// the dual-factor gate.
	ErrForbidden = errors.New("forbidden")
)
