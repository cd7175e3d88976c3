package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"

	"github.com/layer-3/demogate/adapters/events"
	"github.com/layer-3/demogate/adapters/store"
	"github.com/layer-3/demogate/adapters/tokenizer"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/service"
	transport "github.com/layer-3/demogate/transport/http"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

// pages echoes the path it was asked to serve.
var pages = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "page:"+r.URL.Path)
})

type testServer struct {
	router http.Handler
	clock  *abtime.ManualTime
}

func setupServer(t *testing.T, secrets map[string]string, secureCookies bool) *testServer {
	t.Helper()
	clock := abtime.NewManualAtTime(time.Unix(1_700_000_000, 0).UTC())
	creds := store.NewMemoryStore(secrets)
	signKey, _ := creds.Lookup(core.ScopeSigning)

	auth := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signKey, clock),
		creds,
		events.NopPublisher{},
		service.WithClock(clock),
		service.WithLogger(discard),
	)
	resources := service.NewResourceService(creds, service.WithLogger(discard))

	router := transport.SetupRouter(transport.RouterConfig{
		Issuer:               auth,
		Verifier:             auth,
		Resources:            resources,
		Pages:                pages,
		StaticAssetHeuristic: true,
		SecureCookies:        secureCookies,
		Logger:               discard,
	})
	return &testServer{router: router, clock: clock}
}

func defaultSecrets() map[string]string {
	return map[string]string{
		core.ScopeSession: "s3cret",
		core.ScopeSigning: "jwt-signing-key",
		"demo-a":          "p1",
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		reqBody = &buf
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/login", map[string]string{"password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == transport.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLoginSetsSessionCookie(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	rec := srv.do(t, http.MethodPost, "/api/login", map[string]string{"password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true}, decodeBody(t, rec))

	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.NotContains(t, rec.Body.String(), cookie.Value, "token must not be echoed in the body")
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
}

func TestLoginSecureCookieInProduction(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), true)
	cookie := srv.login(t)
	assert.True(t, cookie.Secure)
}

func TestLoginSecureCookieBehindTLSProxy(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sessionCookie(t, rec).Secure)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestLoginFailures(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	cases := []struct {
		name   string
		body   any
		status int
		err    string
	}{
		{"wrong password", map[string]string{"password": "wrong"}, http.StatusUnauthorized, "Invalid credentials"},
		{"resource password", map[string]string{"password": "p1"}, http.StatusUnauthorized, "Invalid credentials"},
		{"missing password", map[string]string{}, http.StatusBadRequest, "Password is required"},
		{"empty password", map[string]string{"password": ""}, http.StatusBadRequest, "Password is required"},
		{"wrong type", map[string]int{"password": 7}, http.StatusBadRequest, "Password is required"},
		{"no body", nil, http.StatusBadRequest, "Password is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/login", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, map[string]any{"error": tc.err}, decodeBody(t, rec))
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		})
	}
}

func TestLoginNotConfigured(t *testing.T) {
	for name, secrets := range map[string]map[string]string{
		"no signing key": {core.ScopeSession: "s3cret"},
		"no secrets":     {},
	} {
		srv := setupServer(t, secrets, false)

		// Configuration is checked before the body is looked at.
		for _, body := range []any{
			map[string]string{"password": "s3cret"},
			map[string]string{},
			nil,
		} {
			rec := srv.do(t, http.MethodPost, "/api/login", body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code, "%s: %v", name, body)
			assert.Equal(t, map[string]any{"error": "Server configuration error"}, decodeBody(t, rec))
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		}
	}
}

func TestGateRedirectsWithoutSession(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	for _, path := range []string{"/", "/dashboard", "/demos", "/apiary", "/loginx", "/api/../dashboard"} {
		rec := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func TestGateForwardsExemptPaths(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	for _, path := range []string{"/login", "/favicon.ico", "/assets/app.js"} {
		rec := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "page:"+path, rec.Body.String())
	}

	rec := srv.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/_gate/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The login endpoint stays reachable without a session.
	rec = srv.do(t, http.MethodPost, "/api/login", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateAllowsValidSession(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)
	cookie := srv.login(t)

	rec := srv.do(t, http.MethodGet, "/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page:/dashboard", rec.Body.String())

	srv.clock.Advance(time.Hour - time.Second)
	rec = srv.do(t, http.MethodGet, "/dashboard", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.clock.Advance(time.Second)
	rec = srv.do(t, http.MethodGet, "/dashboard", nil, cookie)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestGateRejectsBadCookies(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)
	other := setupServer(t, map[string]string{
		core.ScopeSession: "s3cret",
		core.ScopeSigning: "a-different-key",
	}, false)
	foreign := other.login(t)

	cookies := map[string]*http.Cookie{
		"empty":       {Name: transport.SessionCookieName, Value: ""},
		"malformed":   {Name: transport.SessionCookieName, Value: "not.a.jwt"},
		"foreign key": {Name: transport.SessionCookieName, Value: foreign.Value},
		"wrong name":  {Name: "session", Value: srv.login(t).Value},
	}
	for name, cookie := range cookies {
		t.Run(name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, "/dashboard", nil, cookie)
			assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
			assert.Equal(t, "/login", rec.Header().Get("Location"))
		})
	}
}

type countingVerifier struct {
	calls atomic.Int32
	ok    bool
}

func (v *countingVerifier) Verify(context.Context, string) bool {
	v.calls.Add(1)
	return v.ok
}

type panickingVerifier struct{}

func (panickingVerifier) Verify(context.Context, string) bool { panic("boom") }

func gateOnly(verifier transport.SessionVerifier) http.Handler {
	return transport.SetupRouter(transport.RouterConfig{
		Verifier:             verifier,
		Pages:                pages,
		StaticAssetHeuristic: true,
		Logger:               discard,
	})
}

func TestGateDoesNotVerifyExemptPaths(t *testing.T) {
	verifier := &countingVerifier{}
	router := gateOnly(verifier)

	for _, path := range []string{"/login", "/api/anything", "/_gate/health", "/style.css"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: transport.SessionCookieName, Value: "garbage"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusTemporaryRedirect, rec.Code, path)
	}
	assert.Zero(t, verifier.calls.Load())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int32(1), verifier.calls.Load())
}

func TestGateFailsClosed(t *testing.T) {
	router := gateOnly(panickingVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	router = gateOnly(nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
}

func TestCheckPassword(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	rec := srv.do(t, http.MethodPost, "/api/check-password", map[string]string{"demoId": "demo-a", "password": "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"authorized": true}, decodeBody(t, rec))
	assert.Empty(t, rec.Header().Values("Set-Cookie"), "resource checks never issue sessions")

	wrong := srv.do(t, http.MethodPost, "/api/check-password", map[string]string{"demoId": "demo-a", "password": "p2"})
	unknown := srv.do(t, http.MethodPost, "/api/check-password", map[string]string{"demoId": "unknown-scope", "password": "p2"})
	reserved := srv.do(t, http.MethodPost, "/api/check-password", map[string]string{"demoId": core.ScopeSession, "password": "s3cret"})

	for _, rec := range []*httptest.ResponseRecorder{wrong, unknown, reserved} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, map[string]any{"authorized": false, "error": "Invalid credentials"}, decodeBody(t, rec))
	}
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestCheckPasswordBadRequest(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)

	for name, body := range map[string]any{
		"missing demo":     map[string]string{"password": "p1"},
		"missing password": map[string]string{"demoId": "demo-a"},
		"empty demo":       map[string]string{"demoId": "", "password": "p1"},
		"numeric demo":     map[string]any{"demoId": 1, "password": "p1"},
		"no body":          nil,
	} {
		t.Run(name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/check-password", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, map[string]any{"error": "Invalid request body"}, decodeBody(t, rec))
		})
	}
}

func TestSessionDoesNotAuthorizeResources(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)
	cookie := srv.login(t)

	rec := srv.do(t, http.MethodPost, "/api/check-password", map[string]string{"demoId": "demo-a", "password": "s3cret"}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	srv := setupServer(t, defaultSecrets(), false)
	rec := srv.do(t, http.MethodGet, "/login", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
