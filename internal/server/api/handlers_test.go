package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/dmitrijs2005/tornproxy/internal/server/services"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	authErr   error
	revoked   []string
	revokeErr error
	meErr     error
}

func (f *fakeSessions) Authenticate(_ context.Context, raw string) (*models.User, *services.Session, error) {
	if f.authErr != nil {
		return nil, nil, f.authErr
	}
	return &models.User{ID: 42, Name: "Alice"}, &services.Session{Token: "good", ID: "jti", ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (f *fakeSessions) Validate(_ context.Context, token string) (int64, error) {
	switch token {
	case "good":
		return 42, nil
	case "broken":
		return 0, errors.New("store down")
	}
	return 0, common.ErrSession
}

func (f *fakeSessions) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.revokeErr
}

func (f *fakeSessions) Me(_ context.Context, id int64) (*models.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &models.User{ID: id, Name: "Alice"}, nil
}

type fakeCredentials struct {
	owner   int64
	desc    string
	token   string
	upd     models.CredentialUpdate
	updated bool
	err     error
}

func (f *fakeCredentials) list() []*models.ProxyCredential {
	return []*models.ProxyCredential{{Token: "tok", UserID: f.owner, Permissions: models.PermissionPublic}}
}

func (f *fakeCredentials) List(_ context.Context, owner int64) ([]*models.ProxyCredential, error) {
	f.owner = owner
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeCredentials) Create(_ context.Context, owner int64, desc string) ([]*models.ProxyCredential, error) {
	f.owner, f.desc = owner, desc
	return f.list(), f.err
}

func (f *fakeCredentials) Update(_ context.Context, token string, owner int64, upd models.CredentialUpdate) ([]*models.ProxyCredential, error) {
	f.owner, f.token, f.upd, f.updated = owner, token, upd, true
	return f.list(), f.err
}

type fakeProxy struct {
	path  string
	query url.Values
	resp  *upstream.Response
	err   error
}

func (f *fakeProxy) Handle(_ context.Context, path string, query url.Values) (*upstream.Response, error) {
	f.path, f.query = path, query
	return f.resp, f.err
}

type fixture struct {
	sessions *fakeSessions
	creds    *fakeCredentials
	proxy    *fakeProxy
	router   *gin.Engine
}

func newFixture(secure bool) *fixture {
	f := &fixture{
		sessions: &fakeSessions{},
		creds:    &fakeCredentials{},
		proxy:    &fakeProxy{resp: &upstream.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":1}`)}},
	}
	f.router = NewRouter(&Server{
		Sessions:     f.sessions,
		Credentials:  f.creds,
		Proxy:        f.proxy,
		SecureCookie: secure,
	})
	return f
}

func (f *fixture) do(method, target, body, cookie string) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", common.SessionCookieName)
	return nil
}

func TestAuthenticate_SetsCookie(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodPost, "/api/authenticate", `{"key":"REAL"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"name":"Alice"}`, rec.Body.String())

	c := sessionCookie(t, rec)
	assert.Equal(t, "good", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.InDelta(t, 15*60, c.MaxAge, 2)
}

func TestAuthenticate_DevelopmentCookieNotSecure(t *testing.T) {
	f := newFixture(false)
	rec := f.do(http.MethodPost, "/api/authenticate", `{"key":"REAL"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sessionCookie(t, rec).Secure)
}

func TestAuthenticate_Errors(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodPost, "/api/authenticate", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.sessions.authErr = &common.UpstreamAuthError{Payload: []byte(`{"code":2,"error":"Incorrect key"}`)}
	rec = f.do(http.MethodPost, "/api/authenticate", `{"key":"WRONG"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"code":2,"error":"Incorrect key"}`, rec.Body.String())

	f.sessions.authErr = common.ErrUpstreamForward
	rec = f.do(http.MethodPost, "/api/authenticate", `{"key":"REAL"}`, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	f.sessions.authErr = errors.New("db down")
	rec = f.do(http.MethodPost, "/api/authenticate", `{"key":"REAL"}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionRequired(t *testing.T) {
	f := newFixture(true)

	for _, cookie := range []string{"", "expired"} {
		for _, target := range []string{"/api/me", "/api/credentials"} {
			rec := f.do(http.MethodGet, target, "", cookie)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error_message":"unauthenticated"}`, rec.Body.String())
		}
	}

	rec := f.do(http.MethodGet, "/api/credentials", "", "broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMe(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodGet, "/api/me", "", "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"name":"Alice"}`, rec.Body.String())

	f.sessions.meErr = common.ErrSession
	rec = f.do(http.MethodGet, "/api/me", "", "good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLock(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodPost, "/api/lock", "", "good")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Equal(t, []string{"good"}, f.sessions.revoked)

	c := sessionCookie(t, rec)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)

	f.sessions.revokeErr = errors.New("redis down")
	rec = f.do(http.MethodPost, "/api/lock", "", "good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCredentials(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodGet, "/api/credentials", "", "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, f.creds.owner)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "tok", list[0]["key"])
	assert.Nil(t, list[0]["revoked_at"])

	rec = f.do(http.MethodPost, "/api/credentials", `{"description":"my app"}`, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "my app", f.creds.desc)

	rec = f.do(http.MethodPut, "/api/credentials/tok", `{"revoked_at":"2024-01-01T00:00:00Z","permissions":"bogus"}`, "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", f.creds.token)
	require.NotNil(t, f.creds.upd.RevokedAt)
	assert.True(t, f.creds.upd.RevokedAt.Valid)
	assert.Nil(t, f.creds.upd.Permissions)

	rec = f.do(http.MethodPut, "/api/credentials/tok", `[1,2]`, "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.creds.err = errors.New("db down")
	rec = f.do(http.MethodGet, "/api/credentials", "", "good")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error_message":"internal error"}`, rec.Body.String())
}

func TestProxy_PassThrough(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodGet, "/user/?selections=basic&key=tok", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":1}`, rec.Body.String())
	assert.Equal(t, "/user/", f.proxy.path)
	assert.Equal(t, "tok", f.proxy.query.Get("key"))

	rec = f.do(http.MethodGet, "/tornstats/api.php?key=tok&action=spy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tornstats/api.php", f.proxy.path)
}

func TestProxy_Envelopes(t *testing.T) {
	f := newFixture(true)

	f.proxy.err = common.ErrCredentialRevoked
	rec := f.do(http.MethodGet, "/user/?key=tok", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"code":2,"error":"Incorrect Key","proxy":true,"proxy_code":2,"proxy_error":"Key revoked"}`, rec.Body.String())

	f.proxy.err = common.ErrUpstreamForward
	rec = f.do(http.MethodGet, "/tornstats/api.php?key=tok", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"ERROR: (tornstats error would go here if only it would make a bit more sense)","proxy":true,"proxy_code":0,"proxy_error":"Failed to proxy the request to tornstats.com"}`, rec.Body.String())
}

func TestProxy_OnlyGet(t *testing.T) {
	f := newFixture(true)
	rec := f.do(http.MethodPost, "/user/?key=tok", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.proxy.path)
}

func TestHealthz(t *testing.T) {
	f := newFixture(true)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	r := NewRouter(&Server{Sessions: f.sessions, Credentials: f.creds, Proxy: f.proxy,
		Health: func(context.Context) error { return errors.New("db down") }})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(true)

	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRedactedURI(t *testing.T) {
	u, _ := url.Parse("/user/?key=SECRET&selections=basic")
	got := redactedURI(u)
	assert.NotContains(t, got, "SECRET")
	assert.Contains(t, got, "selections=basic")

	u, _ = url.Parse("/healthz")
	assert.Equal(t, "/healthz", redactedURI(u))
}
