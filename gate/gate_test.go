package gate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/backend/auth"
	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

const testSecret = "gate-test-secret"

type fixture struct {
	store    *profiles.MemoryStore
	sessions *auth.SessionManager
	metrics  *metrics.Metrics
	router   http.Handler
}

func newFixture(t *testing.T, routes rbac.RouteTable) *fixture {
	t.Helper()
	sessions, err := auth.NewSessionManager(testSecret, auth.SessionOptions{Lifetime: 24 * time.Hour})
	require.NoError(t, err)

	f := &fixture{
		store:    profiles.NewMemoryStore(),
		sessions: sessions,
		metrics:  metrics.New(),
	}

	r := chi.NewRouter()
	r.Use(sessions.Middleware)
	r.Use(Identify(f.store))
	r.Use(New(routes, nil, f.metrics).Middleware)
	r.Get("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("page"))
	})
	f.router = r
	return f
}

func (f *fixture) profile(t *testing.T, role rbac.Role) profiles.Profile {
	t.Helper()
	return f.store.Put(profiles.Profile{Email: string(role) + "@example.com", Role: role})
}

func (f *fixture) sessionCookie(t *testing.T, p profiles.Profile) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := f.sessions.Issue(rec, p.ID, p.Email)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (f *fixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashOf(rec *httptest.ResponseRecorder) string {
	if c := cookieNamed(rec, FlashCookie); c != nil {
		return c.Value
	}
	return ""
}

func TestGate_AdminSubtree(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	buyer := f.sessionCookie(t, f.profile(t, rbac.RoleBuyer))
	rec := f.get("/admin/dealers", buyer)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, string(ReasonUnauthorized), flashOf(rec))

	moderator := f.sessionCookie(t, f.profile(t, rbac.RoleModerator))
	rec = f.get("/admin/dealers", moderator)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page", rec.Body.String())
	assert.Nil(t, cookieNamed(rec, FlashCookie))
}

func TestGate_UnauthenticatedKeepsRequestedPath(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	rec := f.get("/dealer/dashboard")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fdealer%2Fdashboard", rec.Header().Get("Location"))
	assert.Equal(t, string(ReasonUnauthenticated), flashOf(rec))
}

func TestGate_ConfiguredFallback(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	inspector := f.sessionCookie(t, f.profile(t, rbac.RoleInspector))
	rec := f.get("/buyer/alerts", inspector)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestGate_UnprotectedPaths(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	for _, path := range []string{"/", "/login", "/listings/42", "/dealership"} {
		rec := f.get(path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestGate_InvalidSessionIsUnauthenticated(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	rec := f.get("/profile", &http.Cookie{Name: f.sessions.CookieName(), Value: "not-a-jwt"})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fprofile", rec.Header().Get("Location"))
}

func TestGate_BackendErrorFailsClosed(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)
	admin := f.sessionCookie(t, f.profile(t, rbac.RoleAdmin))
	f.store.Err = errors.New("connection refused")

	rec := f.get("/admin", admin)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, string(ReasonBackendError), flashOf(rec))

	families, err := f.metrics.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() != "access_gate_decisions_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "reason" && label.GetValue() == string(ReasonBackendError) {
					found = true
					assert.Equal(t, float64(1), m.GetCounter().GetValue())
				}
			}
		}
	}
	assert.True(t, found)
}

func TestGate_DeletedProfileIsUnauthorized(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)
	ghost := profiles.Profile{ID: "00000000-0000-0000-0000-000000000001", Email: "ghost@example.com"}

	rec := f.get("/profile", f.sessionCookie(t, ghost))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, string(ReasonUnauthorized), flashOf(rec))
}

func TestGate_DecisionMatchesRoleTable(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)

	for _, role := range rbac.AllRoles() {
		cookie := f.sessionCookie(t, f.profile(t, role))
		for _, route := range rbac.DefaultRoutes {
			path := route.Path + "/page"
			rec := f.get(path, cookie)
			if rbac.IsRoleAllowed(role, route.AllowedRoles) {
				assert.Equal(t, http.StatusOK, rec.Code, "%s on %s", role, path)
				continue
			}
			assert.Equal(t, http.StatusFound, rec.Code, "%s on %s", role, path)
			location := rec.Header().Get("Location")
			assert.Equal(t, route.FallbackTarget(), location, "%s on %s", role, path)
			assert.False(t, strings.Contains(location, "redirect="), "wrong-role redirect must not carry the path")
		}
	}
}

func TestGate_RefreshedSessionSurvivesRedirect(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)
	buyer := f.profile(t, rbac.RoleBuyer)

	// a token issued 20h ago is past half of its 24h lifetime
	issued := time.Now().Add(-20 * time.Hour)
	claims := &auth.Claims{
		ProfileID: buyer.ID,
		Email:     buyer.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   buyer.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(24 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := f.get("/admin", &http.Cookie{Name: f.sessions.CookieName(), Value: token})
	assert.Equal(t, http.StatusFound, rec.Code)

	refreshed := cookieNamed(rec, f.sessions.CookieName())
	require.NotNil(t, refreshed)
	assert.NotEqual(t, token, refreshed.Value)

	renewed, err := f.sessions.Verify(refreshed.Value)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, renewed.ProfileID)
}

func TestGate_RoleFetchedOnce(t *testing.T) {
	f := newFixture(t, rbac.DefaultRoutes)
	dealer := f.sessionCookie(t, f.profile(t, rbac.RoleDealer))

	rec := f.get("/dealer/dashboard", dealer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.RoleCalls)

	rec = f.get("/", dealer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.RoleCalls, "public paths skip the role lookup")
}

func TestResolveRole(t *testing.T) {
	store := profiles.NewMemoryStore()
	admin := store.Put(profiles.Profile{Email: "admin@example.com", Role: rbac.RoleAdmin})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/profiles", nil)
	_, err := ResolveRole(req)
	assert.ErrorIs(t, err, rbac.ErrUnauthenticated)

	req = req.WithContext(profiles.WithViewer(req.Context(), profiles.NewViewer(store, admin.ID)))
	role, err := ResolveRole(req)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, role)
}

func TestConsumeFlash(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: FlashCookie, Value: string(ReasonUnauthorized)})
	rec := httptest.NewRecorder()

	reason, ok := ConsumeFlash(rec, req)
	assert.True(t, ok)
	assert.Equal(t, ReasonUnauthorized, reason)
	expired := cookieNamed(rec, FlashCookie)
	require.NotNil(t, expired)
	assert.Equal(t, -1, expired.MaxAge)

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: FlashCookie, Value: "<script>"})
	_, ok = ReadFlash(forged)
	assert.False(t, ok)
}
