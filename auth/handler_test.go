package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

type authFixture struct {
	store    *profiles.MemoryStore
	sessions *SessionManager
	router   http.Handler
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	sessions, err := NewSessionManager("handler-test-secret", SessionOptions{})
	require.NoError(t, err)
	store := profiles.NewMemoryStore()

	r := chi.NewRouter()
	r.Use(sessions.Middleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if claims := FromContext(r.Context()); claims != nil {
				id = claims.ProfileID
			}
			next.ServeHTTP(w, r.WithContext(profiles.WithViewer(r.Context(), profiles.NewViewer(store, id))))
		})
	})
	r.Mount("/api/auth", NewHandler(store, sessions, nil, nil).Routes())
	return &authFixture{store: store, sessions: sessions, router: r}
}

func (f *authFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterLoginSession(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ana", "email": "Ana@Example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ana@example.com", created.Email)
	assert.Equal(t, rbac.RoleRegistered, created.Role)

	rec = f.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ana again", "email": "ana@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ana@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ana@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec, f.sessions.CookieName())
	require.NotNil(t, cookie)

	// role changes are visible without a new login
	_, err := f.store.SetRole(t.Context(), created.ProfileID, rbac.RoleBuyer, nil)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/auth/session", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, rbac.RoleBuyer, session.Role)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)

	cases := []map[string]string{
		{"name": "A", "email": "not-an-email", "password": "long enough"},
		{"name": "", "email": "a@example.com", "password": "long enough"},
		{"name": "A", "email": "a@example.com", "password": "short"},
	}
	for _, payload := range cases {
		rec := f.do(t, http.MethodPost, "/api/auth/register", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}

func TestSessionRequiresIdentity(t *testing.T) {
	f := newAuthFixture(t)
	rec := f.do(t, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newAuthFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(rec, f.sessions.CookieName())
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}
