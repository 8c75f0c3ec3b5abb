// Package httpapi is the JSON-over-HTTP surface of the service: registration,
// login, profile, token refresh, logout and the password recovery flow.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
)

// Options tunes the HTTP surface.
type Options struct {
	// RoutePrefix is prepended to every API route, e.g. "/api".
	RoutePrefix    string
	CookieSecure   bool
	RequestTimeout time.Duration
}

// Handler serves the REST API.
type Handler struct {
	users     *services.UserService
	passwords *services.PasswordService
	issuer    *auth.Issuer
	metrics   *metrics.Registry
	opts      Options
	logger    logging.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	users *services.UserService,
	passwords *services.PasswordService,
	issuer *auth.Issuer,
	m *metrics.Registry,
	opts Options,
	logger logging.Logger,
) *Handler {
	opts.RoutePrefix = strings.TrimRight(opts.RoutePrefix, "/")
	return &Handler{
		users:     users,
		passwords: passwords,
		issuer:    issuer,
		metrics:   m,
		opts:      opts,
		logger:    logger.With("component", "http"),
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery and timeout middleware.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, http.MethodGet, "/{$}", h.Health)
	h.handle(mux, http.MethodPost, "/register", h.Register)
	h.handle(mux, http.MethodPost, "/login", h.Login)
	h.handle(mux, http.MethodGet, "/user", h.requireAccessToken(h.User))
	h.handle(mux, http.MethodGet, "/refresh", h.Refresh)
	h.handle(mux, http.MethodGet, "/logout", h.Logout)
	h.handle(mux, http.MethodPost, "/forgot", h.Forgot)
	h.handle(mux, http.MethodPost, "/reset", h.Reset)

	mux.Handle("GET /metrics", h.metrics.Handler())

	// Recovery innermost so panics are caught before logging.
	var wrapped http.Handler = mux
	wrapped = timeoutMiddleware(h.opts.RequestTimeout, wrapped)
	wrapped = recoveryMiddleware(h.logger, wrapped)
	wrapped = loggingMiddleware(h.logger, wrapped)

	return wrapped
}

func (h *Handler) handle(mux *http.ServeMux, method, path string, fn http.HandlerFunc) {
	route := h.opts.RoutePrefix + path
	mux.HandleFunc(method+" "+route, instrument(h.metrics, route, fn))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Healthy"))
}

// Register creates an account and returns its profile.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), services.RegisterInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	h.metrics.AuthEvent(metrics.EventRegister, err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// Login verifies credentials, returns an access token in the body and sets
// the refresh token as an httpOnly cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	h.metrics.AuthEvent(metrics.EventLogin, err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(pair.Refresh.Token, pair.Refresh.ExpiresAt))
	writeJSON(w, http.StatusOK, tokenResponse{Token: pair.Access.Token})
}

// User returns the profile of the access token holder.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, r, common.ErrMissingToken)
		return
	}

	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// Refresh exchanges the refresh cookie for a new access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		h.metrics.AuthEvent(metrics.EventRefresh, common.ErrMissingToken)
		h.writeServiceError(w, r, common.ErrMissingToken)
		return
	}

	access, err := h.users.Refresh(r.Context(), cookie.Value)
	h.metrics.AuthEvent(metrics.EventRefresh, err)
	if err != nil {
		h.logger.Debug(r.Context(), "refresh rejected", "error", err)
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: access.Token})
}

// Logout revokes the session behind the refresh cookie and clears it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		h.metrics.AuthEvent(metrics.EventLogout, common.ErrMissingToken)
		h.writeServiceError(w, r, common.ErrMissingToken)
		return
	}

	err = h.users.Logout(r.Context(), cookie.Value)
	h.metrics.AuthEvent(metrics.EventLogout, err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	expired := h.refreshCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	writeJSON(w, http.StatusOK, successResponse)
}

// Forgot starts password recovery. The response never tells whether the
// email is registered.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.passwords.Forgot(r.Context(), req.Email)
	h.metrics.AuthEvent(metrics.EventForgot, err)
	if err != nil {
		h.logger.Error(r.Context(), "password recovery failed", "error", err)
	}

	writeJSON(w, http.StatusOK, successResponse)
}

// Reset sets a new password using a recovery token.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.passwords.Reset(r.Context(), services.ResetInput{
		Token:           req.Token,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	h.metrics.AuthEvent(metrics.EventReset, err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse)
}

func (h *Handler) refreshCookie(value string, expires time.Time) *http.Cookie {
	path := h.opts.RoutePrefix
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
