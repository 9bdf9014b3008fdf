// Package http exposes the request-handling service: the health check,
// the bearer-gated API surface, and the signed-token provisioning and
// logout endpoints.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nutrilog/gatekeeper/auth/signed"
	"github.com/nutrilog/gatekeeper/auth/token"
	"github.com/nutrilog/gatekeeper/helper"
	"github.com/nutrilog/gatekeeper/logger"
)

// AuthMode selects which credential scheme guards the protected surface.
type AuthMode string

const (
	// ModeLegacy validates opaque bearer tokens against the token cache.
	ModeLegacy AuthMode = "legacy"

	// ModeSigned validates self-contained signed tokens through the
	// revocation engine.
	ModeSigned AuthMode = "signed"
)

// HandlerProperties contains configuration for the public HTTP handler.
type HandlerProperties struct {
	Mode      AuthMode
	Validator *token.Validator
	Engine    *signed.Engine

	// IdentityHeader is the platform identity assertion header used by
	// the provisioning endpoint.
	IdentityHeader string

	// Protected is the downstream application handler mounted under
	// /v1/. It reads the caller identity from the request context.
	Protected http.Handler

	Logger logger.Logger
}

// Handler creates the main HTTP handler for the public service.
func Handler(props *HandlerProperties) http.Handler {
	s := &server{props: props, log: props.Logger.WithComponent("http")}
	if s.props.IdentityHeader == "" {
		s.props.IdentityHeader = "X-Goog-Authenticated-User-Email"
	}

	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		helper.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if props.Engine != nil {
		r.Post("/v1/auth/token", s.handleProvision)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		if props.Engine != nil {
			r.Post("/v1/auth/logout", s.handleLogout)
		}
		if props.Protected != nil {
			r.Mount("/v1", props.Protected)
		}
	})

	return r
}

type server struct {
	props *HandlerProperties
	log   logger.Logger
}

// requestID tags every request with a sortable ID for tracing.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := helper.GenerateRequestID()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

// handleProvision mints a signed token for a platform-verified identity.
func (s *server) handleProvision(w http.ResponseWriter, r *http.Request) {
	identity, ok := helper.IdentityAssertion(r, s.props.IdentityHeader)
	if !ok {
		helper.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	tok, expiresAt, err := s.props.Engine.Issue(identity)
	if err != nil {
		s.log.Error("token issuance failed", logger.Err(err))
		helper.JSONError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	s.log.Info("issued signed token", logger.String("owner", identity))
	helper.JSONResponse(w, http.StatusOK, map[string]any{
		"token":      tok,
		"owner":      identity,
		"expires_at": expiresAt.UTC(),
	})
}

// handleLogout raises the caller's own revocation cutoff to now,
// invalidating every token issued to them before this moment.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		helper.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := s.props.Engine.Revoke(r.Context(), identity); err != nil {
		s.log.Error("logout revocation failed",
			logger.String("owner", identity), logger.Err(err))
		helper.JSONError(w, http.StatusInternalServerError, "revocation failed")
		return
	}

	s.log.Info("logged out", logger.String("owner", identity))
	helper.JSONResponse(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

func withIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated caller identity set by
// the bearer middleware.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request's trace ID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
