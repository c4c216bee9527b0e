package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/auth"
	"github.com/motorlot/marketplace/backend/currency"
	"github.com/motorlot/marketplace/backend/dealers"
	"github.com/motorlot/marketplace/backend/inspections"
	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/leads"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestServer(t *testing.T) (*httptest.Server, *profiles.MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions, err := auth.NewSessionManager("test-secret", auth.SessionOptions{})
	require.NoError(t, err)

	m := metrics.New()
	store := profiles.NewMemoryStore()
	handler := newRouter(app{
		logger:      zap.NewNop(),
		metrics:     m,
		sessions:    sessions,
		routes:      rbac.DefaultRoutes,
		profiles:    store,
		dealers:     dealers.NewMemoryStore(),
		staff:       store,
		listings:    listings.NewMemoryStore(store),
		leads:       leads.NewMemoryStore(),
		inspections: inspections.NewMemoryStore(),
		limiter:     auth.NewLoginRateLimiter(rdb, m, nil),
		currency:    currency.NewConverter(currency.Options{BaseURL: "http://127.0.0.1:1"}, rdb, m, nil),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: srv.URL, http: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (c *client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *client) expectRedirect(path, location string) {
	c.t.Helper()
	resp, _ := c.do(http.MethodGet, path, nil)
	assert.Equal(c.t, http.StatusFound, resp.StatusCode, path)
	assert.Equal(c.t, location, resp.Header.Get("Location"), path)
}

func TestSellerJourney(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	c.expectRedirect("/dealer/dashboard", "/login?redirect=%2Fdealer%2Fdashboard")

	resp, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ola", "email": "ola@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	// registered users are bounced by the gate, then onboard as a dealer
	c.expectRedirect("/dealer/dashboard", "/")
	resp, _ = c.do(http.MethodGet, "/onboarding/dealer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodPost, "/api/onboarding/dealer", map[string]string{"business_name": "Ola Bil"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = c.do(http.MethodGet, "/dealer/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	c.expectRedirect("/onboarding/dealer", "/dealer/dashboard")
	c.expectRedirect("/admin", "/")

	resp, body = c.do(http.MethodPost, "/api/listings", map[string]any{
		"make": "Volvo", "model": "XC60", "year": 2020, "price_cents": 3200000, "currency": "NOK",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	anon := newClient(t, srv)
	resp, body = anon.do(http.MethodGet, "/api/listings?make=volvo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []listings.Listing
	require.NoError(t, json.Unmarshal(body, &found))
	require.Len(t, found, 1)

	resp, body = anon.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Kari", "email": "kari@example.com", "password": "battery staple",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, body = anon.do(http.MethodPost, "/api/listings/"+found[0].ID+"/leads", map[string]string{"message": "Still for sale?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = c.do(http.MethodGet, "/dealer/leads", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "Still for sale?")

	resp, body = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "access_gate_decisions_total")
	assert.Contains(t, string(body), "access_guard_decisions_total")
}

func TestLogoutAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	resp, _ := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ola", "email": "ola@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c.expectRedirect("/profile", "/login?redirect=%2Fprofile")

	resp, _ = c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ola@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ola@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := c.do(http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"role":"registered"`)
}

func TestRoleChangeAppliesOnNextRequest(t *testing.T) {
	srv, store := newTestServer(t)
	c := newClient(t, srv)

	resp, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ola", "email": "ola@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session struct {
		ProfileID string `json:"profile_id"`
	}
	require.NoError(t, json.Unmarshal(body, &session))

	c.expectRedirect("/inspector/queue", "/")

	_, err := store.SetRole(t.Context(), session.ProfileID, rbac.RoleInspector, nil)
	require.NoError(t, err)
	resp, _ = c.do(http.MethodGet, "/inspector/queue", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndPublicPages(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	resp, body := c.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = c.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
