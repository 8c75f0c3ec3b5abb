package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTTL  = 30 * time.Second
	refreshTTL = 7 * 24 * time.Hour
)

// --- Test doubles ---

type fakeMailer struct {
	mu     sync.Mutex
	bodies map[string][]string
}

func (m *fakeMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bodies == nil {
		m.bodies = map[string][]string{}
	}
	m.bodies[to] = append(m.bodies[to], body)
	return nil
}

func (m *fakeMailer) To(addr string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies[addr]...)
}

type testServer struct {
	clock     *timex.ManualClock
	users     *services.UserService
	passwords *services.PasswordService
	mailer    *fakeMailer
	handler   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := timex.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	rm := repomanager.NewInMemoryRepositoryManager()
	tx := dbx.NopTransactor{}
	log := logging.Nop{}

	vault, err := auth.NewVault(bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(
		auth.SigningKey{Secret: []byte("access-secret"), TTL: accessTTL},
		auth.SigningKey{Secret: []byte("refresh-secret"), TTL: refreshTTL},
		clock,
	)
	require.NoError(t, err)

	sessions := services.NewSessionRegistry(rm, clock)
	recovery := services.NewRecoveryRegistry(rm, clock, time.Hour)
	mailer := &fakeMailer{}

	users := services.NewUserService(tx, rm, vault, issuer, sessions, log)
	passwords := services.NewPasswordService(tx, rm, vault, recovery, sessions, mailer, "http://front", time.Second, log)

	h := NewHandler(users, passwords, issuer, metrics.NewRegistry(),
		Options{RoutePrefix: "/api", RequestTimeout: 5 * time.Second}, log)

	return &testServer{
		clock:     clock,
		users:     users,
		passwords: passwords,
		mailer:    mailer,
		handler:   NewServeMux(h),
	}
}

type requestOpt func(*http.Request)

func withBearer(token string) requestOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) requestOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOpt) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, o := range opts {
		o(req)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.RefreshTokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", common.RefreshTokenCookieName)
	return nil
}

var alice = registerRequest{
	FirstName:       "Alice",
	LastName:        "Liddell",
	Email:           "alice@example.com",
	Password:        "Secret123!",
	PasswordConfirm: "Secret123!",
}

func (s *testServer) registerAndLogin(t *testing.T) (string, *http.Cookie) {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/register", alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/login", loginRequest{Email: alice.Email, Password: alice.Password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decodeBody[tokenResponse](t, rec).Token, refreshCookieFrom(t, rec)
}

// --- Tests ---

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Healthy", rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/register", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "alice@example.com", profile["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/api/login", loginRequest{Email: alice.Email, Password: alice.Password})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decodeBody[tokenResponse](t, rec).Token
	require.NotEmpty(t, access)

	cookie := refreshCookieFrom(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api", cookie.Path)
	assert.NotEmpty(t, cookie.Value)

	rec = s.do(t, http.MethodGet, "/api/user", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", decodeBody[map[string]any](t, rec)["first_name"])

	s.clock.Advance(accessTTL + time.Second)

	rec = s.do(t, http.MethodGet, "/api/user", nil, withBearer(access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decodeBody[tokenResponse](t, rec).Token
	assert.NotEqual(t, access, fresh)

	rec = s.do(t, http.MethodGet, "/api/user", nil, withBearer(fresh))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeBody[messageResponse](t, rec).Message)
	cleared := refreshCookieFrom(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	rec = s.do(t, http.MethodGet, "/api/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)

	mismatch := alice
	mismatch.PasswordConfirm = "Other123!"

	short := alice
	short.Password, short.PasswordConfirm = "abc", "abc"

	badEmail := alice
	badEmail.Email = "not-an-email"

	tests := []struct {
		name string
		body any
		msg  string
	}{
		{"mismatch", mismatch, "passwords do not match"},
		{"short", short, "password is too short"},
		{"bad email", badEmail, "invalid email"},
		{"missing name", registerRequest{Email: "x@example.com", Password: "Secret123!", PasswordConfirm: "Secret123!"}, "missing required field"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, decodeBody[errorResponse](t, rec).Error)
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/register", alice).Code)
		rec := s.do(t, http.MethodPost, "/api/register", alice)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "email already registered", decodeBody[errorResponse](t, rec).Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin_Rejected(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/register", alice).Code)

	wrong := s.do(t, http.MethodPost, "/api/login", loginRequest{Email: alice.Email, Password: "nope-nope"})
	unknown := s.do(t, http.MethodPost, "/api/login", loginRequest{Email: "bob@example.com", Password: "nope-nope"})

	for _, rec := range []*httptest.ResponseRecorder{wrong, unknown} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid credentials", decodeBody[errorResponse](t, rec).Error)
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestUser_AuthHeader(t *testing.T) {
	s := newTestServer(t)
	access, cookie := s.registerAndLogin(t)

	tests := []struct {
		name string
		opt  requestOpt
		want int
	}{
		{"missing header", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+access) }, http.StatusUnauthorized},
		{"garbage", withBearer("garbage"), http.StatusUnauthorized},
		{"refresh token as access", withBearer(cookie.Value), http.StatusUnauthorized},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+access) }, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/user", nil, tc.opt)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRefreshAndLogout_MissingCookie(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/refresh", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/logout", nil).Code)
}

func TestForgot_NoEnumeration(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/register", alice).Code)

	known := s.do(t, http.MethodPost, "/api/forgot", forgotRequest{Email: alice.Email})
	unknown := s.do(t, http.MethodPost, "/api/forgot", forgotRequest{Email: "nobody@example.com"})
	invalid := s.do(t, http.MethodPost, "/api/forgot", forgotRequest{Email: "???"})
	s.passwords.Wait()

	for _, rec := range []*httptest.ResponseRecorder{unknown, invalid} {
		assert.Equal(t, known.Code, rec.Code)
		assert.Equal(t, known.Body.String(), rec.Body.String())
		assert.Equal(t, known.Header(), rec.Header())
	}
	assert.Equal(t, http.StatusOK, known.Code)

	assert.Len(t, s.mailer.To(alice.Email), 1)
	assert.Empty(t, s.mailer.To("nobody@example.com"))
}

var resetLink = regexp.MustCompile(`/reset/([0-9a-f]+)"`)

func TestReset_ChangesPassword(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.registerAndLogin(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/forgot", forgotRequest{Email: alice.Email}).Code)
	s.passwords.Wait()

	mails := s.mailer.To(alice.Email)
	require.Len(t, mails, 1)
	m := resetLink.FindStringSubmatch(mails[0])
	require.Len(t, m, 2, mails[0])
	token := m[1]

	rec := s.do(t, http.MethodPost, "/api/reset", resetRequest{Token: token, Password: "Better456!", PasswordConfirm: "Other456!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reset", resetRequest{Token: token, Password: "Better456!", PasswordConfirm: "Better456!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ctx := context.Background()
	_, err := s.users.Authenticate(ctx, alice.Email, "Better456!")
	assert.NoError(t, err)
	_, err = s.users.Authenticate(ctx, alice.Email, alice.Password)
	assert.Error(t, err)

	// single use
	rec = s.do(t, http.MethodPost, "/api/reset", resetRequest{Token: token, Password: "Third789!", PasswordConfirm: "Third789!"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// sessions opened before the reset are gone
	rec = s.do(t, http.MethodGet, "/api/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/login", loginRequest{Email: "x@example.com", Password: "whatever1"})

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `gatekeeper_auth_events_total{event="login",outcome="failure"} 1`)
	assert.Contains(t, body, `gatekeeper_http_requests_total{code="401",method="POST",route="/api/login"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logging.Nop{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := timeoutMiddleware(time.Minute, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
