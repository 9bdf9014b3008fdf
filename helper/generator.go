package helper

import (
	"crypto/rand"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/hashicorp/go-uuid"
	"github.com/oklog/ulid"
)

// TokenLength is the length of generated bearer tokens. 43 base62
// characters carry a little over 256 bits of entropy.
const TokenLength = 43

// GenerateToken generates a cryptographically secure bearer token.
func GenerateToken() (string, error) {
	return base62.Random(TokenLength)
}

// GenerateRequestID returns a sortable unique ID for request tracing.
func GenerateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// GenerateID returns a random UUID, used as the audit identifier of
// admin calls.
func GenerateID() (string, error) {
	return uuid.GenerateUUID()
}
