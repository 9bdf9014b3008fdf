package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nutrilog/gatekeeper/admin"
	"github.com/nutrilog/gatekeeper/auth/signed"
	"github.com/nutrilog/gatekeeper/auth/token"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
	"github.com/nutrilog/gatekeeper/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

// echoIdentity is a protected handler that reports the caller identity
// the middleware attached to the context.
func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		w.Write([]byte(identity))
	})
}

func newLegacyHandler(t *testing.T, backend storage.Backend) http.Handler {
	t.Helper()
	cache := token.NewCache(backend, testLogger())
	return Handler(&HandlerProperties{
		Mode:      ModeLegacy,
		Validator: token.NewValidator(cache, testLogger()),
		Protected: echoIdentity(),
		Logger:    testLogger(),
	})
}

func seedToken(t *testing.T, backend storage.Backend, tok, owner string, status cred.Status) {
	t.Helper()
	require.NoError(t, backend.AppendOrUpdate(context.Background(), cred.Record{
		Token:    tok,
		Owner:    owner,
		IssuedAt: time.Now().UTC(),
		Status:   status,
	}))
}

func get(h http.Handler, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Health(t *testing.T) {
	h := newLegacyHandler(t, storage.NewInmemBackend())

	rec := get(h, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandler_LegacyFlow(t *testing.T) {
	backend := storage.NewInmemBackend()
	seedToken(t, backend, "tkn_alice", "alice@example.com", cred.StatusActive)
	h := newLegacyHandler(t, backend)

	// Cold cache: first request forces the refresh and still succeeds.
	rec := get(h, "/v1/meals", "Bearer tkn_alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", rec.Body.String())

	rec = get(h, "/v1/meals", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(h, "/v1/meals", "Token tkn_alice")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(h, "/v1/meals", "Bearer tkn_unknown")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_LegacyRevokedDenied(t *testing.T) {
	backend := storage.NewInmemBackend()
	seedToken(t, backend, "tkn_old", "bob@example.com", cred.StatusRevoked)
	h := newLegacyHandler(t, backend)

	rec := get(h, "/v1/meals", "Bearer tkn_old")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_LegacyStoreDownDenies(t *testing.T) {
	backend := storage.NewInmemBackend()
	seedToken(t, backend, "tkn_alice", "alice@example.com", cred.StatusActive)
	backend.FailFetch(true)
	h := newLegacyHandler(t, backend)

	// Never cached and unreachable store: deny, with a body that says no
	// more than that.
	rec := get(h, "/v1/meals", "Bearer tkn_alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden")
	assert.NotContains(t, rec.Body.String(), "store")
}

func TestHandler_AdminRegisterThenColdReplicaValidates(t *testing.T) {
	backend := storage.NewInmemBackend()

	gate, err := admin.NewGate("super-secret-admin-key-of-enough-length", "", testLogger())
	require.NoError(t, err)
	adminHandler := admin.NewService(backend, gate, testLogger()).Handler()

	// Register alice through the admin surface.
	req := httptest.NewRequest(http.MethodPost, "/admin/users?show_token=true",
		strings.NewReader(`{"owner":"alice@example.com"}`))
	req.Header.Set("X-Goog-Authenticated-User-Email", "ops@example.com")
	req.Header.Set("X-Admin-Secret", "super-secret-admin-key-of-enough-length")
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Token)

	// A replica with an empty cache validates the brand new token on its
	// first request, through the miss-triggered refresh.
	replica := newLegacyHandler(t, backend)
	got := get(replica, "/v1/meals", "Bearer "+created.Token)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "alice@example.com", got.Body.String())
}

func TestHandler_RegisterThenUseFlow(t *testing.T) {
	backend := storage.NewInmemBackend()
	h := newLegacyHandler(t, backend)

	// A brand new token denies, lands in the negative cache, then appears
	// in the store and must be allowed after the next refresh interval.
	rec := get(h, "/v1/meals", "Bearer tkn_new")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	seedToken(t, backend, "tkn_new", "carol@example.com", cred.StatusActive)

	// Simulate the interval refresh another path would have triggered.
	cache := token.NewCache(backend, testLogger())
	validator := token.NewValidator(cache, testLogger())
	owner, err := validator.ValidateToken(context.Background(), "tkn_new")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", owner)
}

func newSignedHandler(t *testing.T, backend storage.Backend) (http.Handler, *signed.Engine) {
	t.Helper()
	issuer, err := signed.NewIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)
	engine := signed.NewEngine(issuer, backend, testLogger())

	cache := token.NewCache(backend, testLogger())
	h := Handler(&HandlerProperties{
		Mode:      ModeSigned,
		Validator: token.NewValidator(cache, testLogger()),
		Engine:    engine,
		Protected: echoIdentity(),
		Logger:    testLogger(),
	})
	return h, engine
}

func TestHandler_ProvisionRequiresIdentity(t *testing.T) {
	h, _ := newSignedHandler(t, storage.NewInmemBackend())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_SignedProvisionAndUse(t *testing.T) {
	h, _ := newSignedHandler(t, storage.NewInmemBackend())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
	req.Header.Set("X-Goog-Authenticated-User-Email", "accounts.google.com:alice@example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token     string    `json:"token"`
		Owner     string    `json:"owner"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp.Owner)
	require.NotEmpty(t, resp.Token)

	got := get(h, "/v1/meals", "Bearer "+resp.Token)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "alice@example.com", got.Body.String())
}

func TestHandler_SignedLogoutRevokesPriorTokens(t *testing.T) {
	backend := storage.NewInmemBackend()
	h, engine := newSignedHandler(t, backend)

	raw, _, err := engine.Issue("alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The token presented for the logout is among those revoked.
	got := get(h, "/v1/meals", "Bearer "+raw)
	assert.Equal(t, http.StatusForbidden, got.Code)
}

func TestHandler_SignedGarbageToken(t *testing.T) {
	h, _ := newSignedHandler(t, storage.NewInmemBackend())

	rec := get(h, "/v1/meals", "Bearer not.a.token")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(h, "/v1/meals", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
