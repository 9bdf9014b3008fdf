package http

import (
	"errors"
	"net/http"

	"github.com/nutrilog/gatekeeper/auth/token"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/helper"
	"github.com/nutrilog/gatekeeper/logger"
)

// authenticate is the bearer gate in front of the protected surface.
// Missing or malformed credentials get 401; everything else that fails
// gets 403 with a body that leaks nothing about the store.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identity string
		var err error

		switch s.props.Mode {
		case ModeSigned:
			var raw string
			raw, err = token.ExtractBearer(r)
			if err == nil {
				identity, err = s.props.Engine.Validate(r.Context(), raw)
			}
		default:
			identity, err = s.props.Validator.Validate(r.Context(), r)
		}

		if err != nil {
			s.deny(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (s *server) deny(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := RequestIDFromContext(r.Context())

	switch {
	case errors.Is(err, cred.ErrMissingCredential):
		helper.JSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, cred.ErrStoreUnavailable):
		// The cause class is in the refresh logs; the caller learns
		// nothing beyond the denial.
		s.log.Warn("denied request due to store unavailability",
			logger.String("request_id", reqID),
			logger.String("path", r.URL.Path))
		helper.JSONError(w, http.StatusForbidden, "forbidden")
	default:
		helper.JSONError(w, http.StatusForbidden, "forbidden")
	}
}
