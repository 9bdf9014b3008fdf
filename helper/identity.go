package helper

import (
	"net/http"
	"strings"
)

// IdentityAssertion extracts the platform-asserted principal from header.
// The hosting platform verifies the identity and rewrites the header on
// every request; this only checks presence and shape. IAP-style values
// carry an issuer prefix ("accounts.google.com:user@example.com") which
// is stripped.
func IdentityAssertion(r *http.Request, header string) (string, bool) {
	identity := r.Header.Get(header)
	if _, after, found := strings.Cut(identity, ":"); found {
		identity = after
	}
	if identity == "" || !strings.Contains(identity, "@") {
		return "", false
	}
	return identity, true
}
