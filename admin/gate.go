package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/nutrilog/gatekeeper/helper"
	"github.com/nutrilog/gatekeeper/logger"
)

const (
	// DefaultIdentityHeader is where the hosting platform's own
	// authentication layer asserts the calling principal. The value is
	// trusted because the platform strips and rewrites it on every
	// request; this component only checks presence and shape.
	DefaultIdentityHeader = "X-Goog-Authenticated-User-Email"

	// SecretHeader carries the out-of-band shared secret, the second
	// independent factor.
	SecretHeader = "X-Admin-Secret"

	// MinSecretLength rejects weak shared secrets at boot.
	MinSecretLength = 32
)

// ErrWeakSecret is returned when the configured shared secret is missing
// or too short.
var ErrWeakSecret = errors.New("admin shared secret must be at least 32 characters")

// Gate is the dual-factor admin gate: a verified platform identity
// assertion AND an exact shared-secret match. The two checks are separate
// predicates, each independently deniable; the secret is never a fallback
// for a missing identity or the other way around.
type Gate struct {
	identityHeader string
	secret         []byte
	log            logger.Logger
}

// NewGate creates a Gate. identityHeader falls back to
// DefaultIdentityHeader when empty.
func NewGate(secret string, identityHeader string, log logger.Logger) (*Gate, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if identityHeader == "" {
		identityHeader = DefaultIdentityHeader
	}
	return &Gate{
		identityHeader: identityHeader,
		secret:         []byte(secret),
		log:            log.WithComponent("admin_gate"),
	}, nil
}

// checkIdentity verifies the platform identity assertion is present and
// shaped like a principal. Returns the asserted identity for logging.
func (g *Gate) checkIdentity(r *http.Request) (string, bool) {
	return helper.IdentityAssertion(r, g.identityHeader)
}

// checkSecret verifies the shared secret in constant time.
func (g *Gate) checkSecret(r *http.Request) bool {
	provided := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(provided), g.secret) == 1
}

// Middleware denies with 403 unless both factors pass, in order: identity
// assertion first, shared secret second. A valid identity never excuses a
// bad secret.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := g.checkIdentity(r)
		if !ok {
			metrics.IncrCounter([]string{"admin_gate", "identity_denial"}, 1)
			g.log.Warn("admin call without identity assertion",
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("path", r.URL.Path))
			helper.JSONError(w, http.StatusForbidden, "forbidden: missing authentication")
			return
		}

		if !g.checkSecret(r) {
			metrics.IncrCounter([]string{"admin_gate", "secret_denial"}, 1)
			g.log.Warn("admin call with missing or invalid shared secret",
				logger.String("identity", identity),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("path", r.URL.Path))
			helper.JSONError(w, http.StatusForbidden, "forbidden: invalid shared secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}
