package cred

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MaskedRecord is the read-side projection of a Record. The raw token is
// included only when the caller explicitly asked to see it.
type MaskedRecord struct {
	Owner       string    `json:"owner"`
	TokenHash   string    `json:"token_hash"`
	TokenLength int       `json:"token_length"`
	IssuedAt    time.Time `json:"issued_at,omitzero"`
	Status      Status    `json:"status"`
	Token       string    `json:"token,omitempty"`
}

// Mask builds the masked projection of r. The hash prefix is long enough to
// correlate a record with a token in hand, and useless for anything else.
func Mask(r Record, showToken bool) MaskedRecord {
	sum := sha256.Sum256([]byte(r.Token))
	m := MaskedRecord{
		Owner:       r.Owner,
		TokenHash:   hex.EncodeToString(sum[:])[:12] + "...",
		TokenLength: len(r.Token),
		IssuedAt:    r.IssuedAt,
		Status:      r.Status,
	}
	if showToken {
		m.Token = r.Token
	}
	return m
}
