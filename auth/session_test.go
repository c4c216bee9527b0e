package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, now time.Time) *SessionManager {
	t.Helper()
	m, err := NewSessionManager("unit-test-secret", SessionOptions{Lifetime: time.Hour})
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	return m
}

func issue(t *testing.T, m *SessionManager) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Issue(rec, "profile-1", "user@example.com")
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func passThrough(m *SessionManager, req *http.Request) (*Claims, *httptest.ResponseRecorder) {
	var seen *Claims
	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})).ServeHTTP(rec, req)
	return seen, rec
}

func TestNewSessionManager_RequiresSecret(t *testing.T) {
	_, err := NewSessionManager("  ", SessionOptions{})
	assert.Error(t, err)

	m, err := NewSessionManager("secret", SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mp_session", m.CookieName())
}

func TestSessionManager_IssueAndVerify(t *testing.T) {
	m := newManager(t, time.Now())
	cookie := issue(t, m)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	claims, err := m.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "profile-1", claims.ProfileID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestSessionManager_RejectsForeignAndExpiredTokens(t *testing.T) {
	start := time.Now()
	m := newManager(t, start)
	cookie := issue(t, m)

	other, err := NewSessionManager("another-secret", SessionOptions{})
	require.NoError(t, err)
	_, err = other.Verify(cookie.Value)
	assert.Error(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = m.Verify(cookie.Value)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ProfileID: "profile-1"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(raw)
	assert.Error(t, err)
}

func TestMiddleware_AttachesClaims(t *testing.T) {
	m := newManager(t, time.Now())
	cookie := issue(t, m)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	claims, rec := passThrough(m, req)
	require.NotNil(t, claims)
	assert.Equal(t, "profile-1", claims.ProfileID)
	assert.Empty(t, rec.Result().Cookies(), "fresh sessions are not re-issued")

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+cookie.Value)
	claims, _ = passThrough(m, bearer)
	require.NotNil(t, claims)
}

func TestMiddleware_InvalidCookieIsCleared(t *testing.T) {
	m := newManager(t, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: m.CookieName(), Value: "garbage"})
	claims, rec := passThrough(m, req)

	assert.Nil(t, claims)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, m.CookieName(), cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestMiddleware_RefreshesAgedCookie(t *testing.T) {
	start := time.Now()
	m := newManager(t, start)
	cookie := issue(t, m)

	m.now = func() time.Time { return start.Add(40 * time.Minute) }
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	claims, rec := passThrough(m, req)

	require.NotNil(t, claims)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, cookie.Value, cookies[0].Value)

	renewed, err := m.Verify(cookies[0].Value)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(start.Add(time.Hour)))
}
