package signed

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestNewIssuer_WeakKey(t *testing.T) {
	_, err := NewIssuer([]byte("short"), 0)
	assert.ErrorIs(t, err, ErrWeakKey)

	_, err = NewIssuer(testKey, 0)
	assert.NoError(t, err)
}

func TestIssuer_IssueAndParse(t *testing.T) {
	issuer, err := NewIssuer(testKey, time.Hour)
	require.NoError(t, err)

	issuedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issuedAt }

	raw, expiresAt, err := issuer.Issue("alice@example.com")
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(issuedAt.Add(time.Hour)))

	tok, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tok.Owner)
	assert.True(t, tok.IssuedAt.Equal(issuedAt))
	assert.True(t, tok.ExpiresAt.Equal(expiresAt))
}

func TestIssuer_ParseExpiredStillVerifies(t *testing.T) {
	issuer, err := NewIssuer(testKey, time.Minute)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) }

	raw, _, err := issuer.Issue("alice@example.com")
	require.NoError(t, err)

	// Parse checks signature and shape only; expiry is a separate step.
	tok, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tok.Owner)
}

func TestIssuer_ParseRejections(t *testing.T) {
	issuer, err := NewIssuer(testKey, time.Hour)
	require.NoError(t, err)

	raw, _, err := issuer.Issue("alice@example.com")
	require.NoError(t, err)

	otherIssuer, err := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	require.NoError(t, err)
	otherKeyToken, _, err := otherIssuer.Issue("alice@example.com")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	missingClaims, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice@example.com",
	}).SignedString(testKey)
	require.NoError(t, err)

	cases := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-token"},
		{"truncated", raw[:len(raw)-10]},
		{"tampered payload", tamper(raw)},
		{"wrong key", otherKeyToken},
		{"alg none", noneToken},
		{"missing claims", missingClaims},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := issuer.Parse(tc.raw)
			assert.ErrorIs(t, err, cred.ErrBadSignature)
		})
	}
}

// tamper flips a character in the token's payload segment.
func tamper(raw string) string {
	parts := strings.Split(raw, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	parts[1] = string(payload)
	return strings.Join(parts, ".")
}
