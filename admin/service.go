package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/helper"
	"github.com/nutrilog/gatekeeper/logger"
	"github.com/nutrilog/gatekeeper/logical"
	"github.com/nutrilog/gatekeeper/storage"
	"golang.org/x/time/rate"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100

	// AuditIDHeader echoes the audit identifier assigned to an admin call,
	// so a caller can quote it when reporting a problem.
	AuditIDHeader = "X-Audit-Id"
)

// Service is the privileged admin mutation surface over the credential
// store. Every call is independently authenticated by the dual-factor
// gate; no session state is kept.
type Service struct {
	backend storage.Backend
	gate    *Gate
	log     logger.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewService creates the admin service.
func NewService(backend storage.Backend, gate *Gate, log logger.Logger) *Service {
	return &Service{
		backend: backend,
		gate:    gate,
		log:     log.WithComponent("admin"),
		// Abuse backstop only; the real gate is dual-factor auth.
		limiter: rate.NewLimiter(rate.Limit(25), 50),
		now:     time.Now,
	}
}

// Handler returns the admin HTTP handler. The health check bypasses the
// gate; everything else sits behind it.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		helper.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auditID)
		r.Use(s.gate.Middleware)
		r.Use(s.rateLimit)

		r.Post("/admin/users", s.wrap(s.handleRegister))
		r.Get("/admin/users", s.wrap(s.handleList))
		r.Get("/admin/users/{owner}", s.wrap(s.handleShow))
		r.Delete("/admin/users/{owner}", s.wrap(s.handleRevoke))
	})

	return r
}

type auditKey struct{}

// auditID assigns every admin call an audit identifier, echoed to the
// caller and attached to the mutation log trail. Denials carry it too.
func (s *Service) auditID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := helper.GenerateID()
		if err != nil {
			helper.JSONError(w, http.StatusInternalServerError, "audit id generation failed")
			return
		}
		w.Header().Set(AuditIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auditKey{}, id)))
	})
}

// AuditID returns the audit identifier assigned to an admin request.
func AuditID(ctx context.Context) string {
	id, _ := ctx.Value(auditKey{}).(string)
	return id
}

func (s *Service) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			helper.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) (any, error)

// wrap converts a handlerFunc's error into a JSON error response. The
// admin caller is trusted, so errors carry operator detail; secret and
// token values never appear in them.
func (s *Service) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(w, r)
		if err != nil {
			status := logical.GetErrorCode(err)
			if status >= http.StatusInternalServerError {
				s.log.Error("admin request failed",
					logger.String("audit_id", AuditID(r.Context())),
					logger.String("path", r.URL.Path),
					logger.Err(err))
			}
			helper.JSONError(w, status, err.Error())
			return
		}
		helper.JSONResponse(w, http.StatusOK, data)
	}
}

type registerRequest struct {
	Owner string `json:"owner"`
	Token string `json:"token,omitempty"`
}

type revokeResponse struct {
	Owner          string    `json:"owner"`
	RevokedRecords int       `json:"revoked_records"`
	InvalidBefore  time.Time `json:"invalid_before"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) (any, error) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, logical.ErrBadRequest("invalid request body")
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" || !strings.Contains(owner, "@") {
		return nil, logical.ErrBadRequest("'owner' must be an email address")
	}

	tok := req.Token
	if tok == "" {
		var err error
		tok, err = helper.GenerateToken()
		if err != nil {
			return nil, logical.ErrInternal("token generation failed")
		}
	}

	rec := cred.Record{
		Token:    tok,
		Owner:    owner,
		IssuedAt: s.now().UTC(),
		Status:   cred.StatusActive,
	}
	if err := s.backend.AppendOrUpdate(r.Context(), rec); err != nil {
		return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
	}

	s.log.Info("registered credential",
		logger.String("audit_id", AuditID(r.Context())),
		logger.String("owner", owner))
	showToken := r.URL.Query().Get("show_token") == "true"
	return cred.Mask(rec, showToken), nil
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) (any, error) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			return nil, logical.ErrBadRequestf("'limit' must be between 1 and %d", maxListLimit)
		}
		limit = n
	}
	filter := r.URL.Query().Get("filter")

	records, err := s.backend.FetchAll(r.Context())
	if err != nil {
		return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Owner != records[j].Owner {
			return records[i].Owner < records[j].Owner
		}
		return records[i].IssuedAt.Before(records[j].IssuedAt)
	})

	masked := make([]cred.MaskedRecord, 0, limit)
	for _, rec := range records {
		if filter != "" && !strings.Contains(rec.Owner, filter) {
			continue
		}
		masked = append(masked, cred.Mask(rec, false))
		if len(masked) >= limit {
			break
		}
	}
	return masked, nil
}

func (s *Service) handleShow(w http.ResponseWriter, r *http.Request) (any, error) {
	owner := chi.URLParam(r, "owner")

	records, err := s.backend.FetchAll(r.Context())
	if err != nil {
		return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
	}

	var match *cred.Record
	for i := range records {
		if records[i].Owner != owner {
			continue
		}
		// Prefer the newest record when an owner has been re-registered.
		if match == nil || records[i].IssuedAt.After(match.IssuedAt) {
			match = &records[i]
		}
	}
	if match == nil {
		return nil, logical.ErrNotFoundf("no credential for %q", owner)
	}

	showToken := r.URL.Query().Get("show_token") == "true"
	return cred.Mask(*match, showToken), nil
}

// handleRevoke revokes an identity both ways: every stored record for the
// owner flips to revoked, and the owner's revocation cutoff rises to now
// so signed tokens issued before this moment die with it.
func (s *Service) handleRevoke(w http.ResponseWriter, r *http.Request) (any, error) {
	owner := chi.URLParam(r, "owner")
	now := s.now().UTC()

	records, err := s.backend.FetchAll(r.Context())
	if err != nil {
		return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
	}

	revoked := 0
	for _, rec := range records {
		if rec.Owner != owner || rec.Status == cred.StatusRevoked {
			continue
		}
		rec.Status = cred.StatusRevoked
		if err := s.backend.AppendOrUpdate(r.Context(), rec); err != nil {
			return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
		}
		revoked++
	}

	if err := s.backend.PutRevocation(r.Context(), owner, now); err != nil {
		return nil, logical.WrapWithCode(http.StatusInternalServerError, err)
	}

	s.log.Info("revoked credentials",
		logger.String("audit_id", AuditID(r.Context())),
		logger.String("owner", owner),
		logger.Int("records", revoked),
		logger.Time("invalid_before", now))
	return &revokeResponse{Owner: owner, RevokedRecords: revoked, InvalidBefore: now}, nil
}

// SecretFromEnv validates an admin shared secret sourced from the
// environment, failing loudly when it is absent or weak.
func SecretFromEnv(value string) (string, error) {
	if value == "" {
		return "", errors.New("admin shared secret is required")
	}
	if len(value) < MinSecretLength {
		return "", ErrWeakSecret
	}
	return value, nil
}
