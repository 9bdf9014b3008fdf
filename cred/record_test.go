package cred

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Active(t *testing.T) {
	assert.True(t, Record{Status: StatusActive}.Active())
	assert.False(t, Record{Status: StatusRevoked}.Active())
	assert.False(t, Record{Status: Status("weird")}.Active())
}

func TestRevocationEntry_Covers(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := RevocationEntry{Owner: "alice@example.com", InvalidBefore: cutoff}

	assert.True(t, entry.Covers(cutoff.Add(-time.Second)))
	// Issued exactly at the cutoff is not covered.
	assert.False(t, entry.Covers(cutoff))
	assert.False(t, entry.Covers(cutoff.Add(time.Second)))
}

func TestMask(t *testing.T) {
	rec := Record{
		Token:    "tkn_supersecretvalue",
		Owner:    "alice@example.com",
		IssuedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Status:   StatusActive,
	}

	masked := Mask(rec, false)
	assert.Equal(t, "alice@example.com", masked.Owner)
	assert.Equal(t, len(rec.Token), masked.TokenLength)
	assert.Len(t, masked.TokenHash, 15) // 12 hex chars plus "..."
	assert.Empty(t, masked.Token)

	shown := Mask(rec, true)
	assert.Equal(t, rec.Token, shown.Token)
	// The hash is stable for the same token.
	assert.Equal(t, masked.TokenHash, shown.TokenHash)
}
