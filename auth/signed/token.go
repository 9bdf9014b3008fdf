package signed

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nutrilog/gatekeeper/cred"
)

// DefaultTokenTTL is the default lifetime of an issued token.
const DefaultTokenTTL = 720 * time.Hour // ~30 days

// minKeyLength is the minimum signing key length in bytes.
const minKeyLength = 32

// ErrWeakKey is returned when the signing key is too short to be safe.
var ErrWeakKey = errors.New("signing key must be at least 32 bytes")

// Token is the verified content of a self-contained signed token. Nothing
// about it is stored server-side; validity is computed, not looked up,
// except for the revocation check.
type Token struct {
	Owner     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints and verifies HMAC-signed tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer creates an Issuer with the given signing key and token
// lifetime (DefaultTokenTTL when ttl is zero).
func NewIssuer(key []byte, ttl time.Duration) (*Issuer, error) {
	if len(key) < minKeyLength {
		return nil, ErrWeakKey
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for owner and returns it with its expiry.
func (i *Issuer) Issue(owner string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and structure of raw and returns its
// content. Expiry is deliberately not checked here; the engine checks it
// as its own step so the failure reason is precise. Any malformed or
// forged input fails closed to ErrBadSignature.
func (i *Issuer) Parse(raw string) (Token, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Token{}, cred.ErrBadSignature
	}
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Token{}, cred.ErrBadSignature
	}
	return Token{
		Owner:     claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
