package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"reviewshelf/internal/app"
	"reviewshelf/internal/ratelimit"
	"reviewshelf/internal/util"
	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	ReviewLimiter  ratelimit.Limiter
	AuthLimiter    ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	reviewLimiter  ratelimit.Limiter
	authLimiter    ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		reviewLimiter:  cfg.ReviewLimiter,
		authLimiter:    cfg.AuthLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("reviewshelf", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	// users
	s.mux.HandleFunc("/users", s.handleUsers)
	s.mux.Handle("/users/", s.withUser(s.handleUserByID))

	// books
	s.mux.Handle("/books", s.withUser(s.handleBooks))
	s.mux.Handle("/books/", s.withUser(s.handleBookByID))

	// reviews
	s.mux.Handle("/reviews", s.withUser(s.handleReviews))
	s.mux.Handle("/reviews/", s.withUser(s.handleReviewByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

// allowRate checks the limiter and writes a 429 when the key is over budget.
func (s *Server) allowRate(w http.ResponseWriter, limiter ratelimit.Limiter, key, msg string) bool {
	if limiter == nil || limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

// pagination

type pageQuery struct {
	page     int
	pageSize int
}

func (q pageQuery) listParams() store.ListParams {
	return store.ListParams{
		Limit:  q.pageSize,
		Offset: (q.page - 1) * q.pageSize,
	}
}

func parsePageQuery(r *http.Request) (pageQuery, error) {
	q := pageQuery{page: 1, pageSize: defaultPageSize}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return pageQuery{}, errors.New("page must be a positive integer")
		}
		q.page = page
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return pageQuery{}, errors.New("page_size must be a positive integer")
		}
		if size > maxPageSize {
			size = maxPageSize
		}
		q.pageSize = size
	}
	return q, nil
}

type listResponse struct {
	Items    any   `json:"items"`
	Count    int   `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func writePage(w http.ResponseWriter, q pageQuery, items any, count int, total int64) {
	writeJSON(w, http.StatusOK, listResponse{
		Items:    items,
		Count:    count,
		Page:     q.page,
		PageSize: q.pageSize,
		Total:    total,
	})
}

// request plumbing

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}

// responses

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps application errors onto the HTTP error taxonomy.
func writeAppError(w http.ResponseWriter, err error) {
	var ve *app.ValidationError
	switch {
	case errors.Is(err, app.ErrMissingFields),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrTitleRequired),
		errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID", err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "USER_EMAIL_TAKEN", err.Error())
	case errors.Is(err, app.ErrRoleCannotOwn):
		writeError(w, http.StatusBadRequest, "BOOK_ROLE_CANNOT_OWN", err.Error())
	case errors.Is(err, app.ErrRatingOutOfRange):
		writeError(w, http.StatusBadRequest, "REVIEW_RATING_OUT_OF_RANGE", err.Error())
	case errors.Is(err, app.ErrDuplicateReview):
		writeError(w, http.StatusBadRequest, "REVIEW_DUPLICATE", err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "REQUEST_FORBIDDEN", err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", err.Error())
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", err.Error())
	case errors.Is(err, app.ErrReviewNotFound):
		writeError(w, http.StatusNotFound, "REVIEW_NOT_FOUND", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}
