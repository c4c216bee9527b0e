package inspections

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	profiles *profiles.MemoryStore
	listings *listings.MemoryStore
	router   http.Handler

	seller, inspector, buyer profiles.Profile
	listing, draft           listings.Listing
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{profiles: profiles.NewMemoryStore()}
	f.listings = listings.NewMemoryStore(f.profiles)
	f.seller = f.profiles.Put(profiles.Profile{Email: "s@example.com", Role: rbac.RoleVerified})
	f.inspector = f.profiles.Put(profiles.Profile{Email: "i@example.com", Role: rbac.RoleInspector})
	f.buyer = f.profiles.Put(profiles.Profile{Email: "b@example.com", Role: rbac.RoleBuyer})

	newListing := func(status listings.Status) listings.Listing {
		l, err := f.listings.Create(t.Context(), listings.Listing{
			OwnerID: f.seller.ID, CreatedBy: f.seller.ID, Make: "Toyota", Model: "Hilux", Year: 2015,
			PriceCents: 1800000, Currency: "EUR", Status: status,
		}, 10)
		require.NoError(t, err)
		return l
	}
	f.listing = newListing(listings.StatusActive)
	f.draft = newListing(listings.StatusDraft)

	h := NewHandler(NewMemoryStore(), f.listings, nil)
	h.now = func() time.Time { return fixedNow }
	enforcer := rbac.NewEnforcer(gate.ResolveRole)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := profiles.NewViewer(f.profiles, r.Header.Get("X-Profile"))
			next.ServeHTTP(w, r.WithContext(profiles.WithViewer(r.Context(), viewer)))
		})
	})
	r.Mount("/api/inspections", h.Routes(enforcer))
	r.Mount("/api/listings/{listingID}/inspections", h.ListingRoutes(enforcer))
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, profileID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Profile", profileID)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func report(listingID string, overrides map[string]any) map[string]any {
	body := map[string]any{
		"listing_id":   listingID,
		"grade":        "good",
		"odometer_km":  120500,
		"inspected_at": "2026-03-14T09:30:00+01:00",
		"checklist": []map[string]any{
			{"name": "Brakes", "passed": true},
			{"name": " brakes ", "passed": false},
			{"name": "", "passed": true},
			{"name": "Tyres", "passed": false, "notes": "front left worn"},
		},
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

func TestSubmitInspection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/inspections", f.inspector.ID, report(f.listing.ID, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var in Inspection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&in))
	assert.Equal(t, f.inspector.ID, in.InspectorID)
	assert.Equal(t, GradeGood, in.Grade)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC), in.InspectedAt)
	require.Len(t, in.Checklist, 2)
	assert.Equal(t, "Brakes", in.Checklist[0].Name)
	assert.Equal(t, "front left worn", in.Checklist[1].Notes)

	rec = f.do(t, http.MethodGet, "/api/inspections", f.inspector.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []Inspection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mine))
	assert.Len(t, mine, 1)
}

func TestSubmitInspection_InspectorOnly(t *testing.T) {
	f := newFixture(t)
	for _, p := range []profiles.Profile{f.seller, f.buyer} {
		rec := f.do(t, http.MethodPost, "/api/inspections", p.ID, report(f.listing.ID, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code, p.Email)
	}
	rec := f.do(t, http.MethodPost, "/api/inspections", "", report(f.listing.ID, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitInspection_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]map[string]any{
		"unknown grade":    {"grade": "meh"},
		"negative odo":     {"odometer_km": -5},
		"future timestamp": {"inspected_at": "2026-03-15T12:00:00Z"},
		"bad timestamp":    {"inspected_at": "yesterday"},
		"unknown listing":  {"listing_id": "nope"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/inspections", f.inspector.ID, report(f.listing.ID, overrides))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListingInspections_Visibility(t *testing.T) {
	f := newFixture(t)
	for _, l := range []listings.Listing{f.listing, f.draft} {
		rec := f.do(t, http.MethodPost, "/api/inspections", f.inspector.ID, report(l.ID, nil))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/listings/"+f.listing.ID+"/inspections", f.buyer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []Inspection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reports))
	assert.Len(t, reports, 1)

	rec = f.do(t, http.MethodGet, "/api/listings/"+f.draft.ID+"/inspections", f.buyer.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/listings/"+f.draft.ID+"/inspections", f.seller.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// guests hold no inspections:view permission
	rec = f.do(t, http.MethodGet, "/api/listings/"+f.listing.ID+"/inspections", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOwnInspectionsSince(t *testing.T) {
	f := newFixture(t)

	for _, at := range []string{"2026-03-01T10:00:00Z", "2026-03-13 16:45", ""} {
		body := report(f.listing.ID, map[string]any{"inspected_at": at})
		rec := f.do(t, http.MethodPost, "/api/inspections", f.inspector.ID, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/api/inspections?since=2026-03-13", f.inspector.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []Inspection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recent))
	require.Len(t, recent, 2)
	for _, in := range recent {
		assert.False(t, in.InspectedAt.Before(time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)))
	}

	rec = f.do(t, http.MethodGet, "/api/inspections?since=13/03/2026", f.inspector.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
