package staff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

func newRouter(store *profiles.MemoryStore) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := profiles.NewViewer(store, r.Header.Get("X-Profile"))
			next.ServeHTTP(w, r.WithContext(profiles.WithViewer(r.Context(), viewer)))
		})
	})
	r.Mount("/api/dealer/staff", NewHandler(store, store, nil).Routes(rbac.NewEnforcer(gate.ResolveRole)))
	return r
}

func call(t *testing.T, h http.Handler, method, path, profileID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Profile", profileID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStaffLifecycle(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	hire := store.Put(profiles.Profile{Name: "Kari", Email: "kari@example.com", Role: rbac.RoleVerified})
	ctx := t.Context()

	rec := call(t, router, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{
		"email": "KARI@example.com", "role": "manager", "can_manage_leads": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var member Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
	assert.Equal(t, rbac.StaffRoleManager, member.Role)
	assert.Equal(t, "Kari", member.Name)

	viewer := profiles.NewViewer(store, hire.ID)
	assert.True(t, viewer.HasRole(ctx, rbac.RoleDealerStaff))
	assert.True(t, viewer.HasDealerStaffPermission(ctx, rbac.FlagManageLeads))
	assert.False(t, viewer.HasDealerStaffPermission(ctx, rbac.FlagPostListings))

	rec = call(t, router, http.MethodPatch, "/api/dealer/staff/"+member.ID, dealer.ID, map[string]any{"can_post_listings": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, profiles.NewViewer(store, hire.ID).HasDealerStaffPermission(ctx, rbac.FlagPostListings))

	rec = call(t, router, http.MethodDelete, "/api/dealer/staff/"+member.ID, dealer.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	after := profiles.NewViewer(store, hire.ID)
	assert.False(t, after.HasDealerStaffPermission(ctx, rbac.FlagManageLeads))
	assert.True(t, after.HasRole(ctx, rbac.RoleVerified), "removal restores the role held before joining")

	records, err := store.ListStaff(ctx, dealer.ID)
	require.NoError(t, err)
	require.Len(t, records, 1, "soft delete keeps the record")
	assert.False(t, records[0].IsActive)

	rec = call(t, router, http.MethodGet, "/api/dealer/staff", dealer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Empty(t, active)

	rec = call(t, router, http.MethodGet, "/api/dealer/staff?include_inactive=true", dealer.ID, nil)
	var all []Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestStaffInviteRules(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	rival := store.Put(profiles.Profile{Email: "rival@example.com", Role: rbac.RoleDealer})
	store.Put(profiles.Profile{Email: "inspector@example.com", Role: rbac.RoleInspector})
	store.Put(profiles.Profile{Email: "poached@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &rival.ID})

	cases := map[string]int{
		"inspector@example.com": http.StatusConflict,
		"poached@example.com":   http.StatusConflict,
		"rival@example.com":     http.StatusConflict,
		"dealer@example.com":    http.StatusBadRequest,
		"nobody@example.com":    http.StatusNotFound,
	}
	for email, want := range cases {
		rec := call(t, router, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{"email": email})
		assert.Equal(t, want, rec.Code, email)
	}

	rec := call(t, router, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{"email": "x@example.com", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffRoutesDealerOnly(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	manager := store.Put(profiles.Profile{Email: "m@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &dealer.ID})
	store.PutStaff(fullManager(dealer.ID, manager.ID))
	admin := store.Put(profiles.Profile{Email: "a@example.com", Role: rbac.RoleAdmin})

	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/dealer/staff", manager.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/dealer/staff", admin.ID, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/api/dealer/staff", "", nil).Code)
}

func TestStaffScopedToDealer(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	other := store.Put(profiles.Profile{Email: "other@example.com", Role: rbac.RoleDealer})
	member := store.Put(profiles.Profile{Email: "m@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &dealer.ID})
	record, err := store.UpsertStaff(t.Context(), fullManager(dealer.ID, member.ID))
	require.NoError(t, err)

	rec := call(t, router, http.MethodDelete, "/api/dealer/staff/"+record.ID, other.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffRemovalRestoresPreviousRole(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	buyer := store.Put(profiles.Profile{Email: "buyer@example.com", Role: rbac.RoleBuyer})
	fresh := store.Put(profiles.Profile{Email: "fresh@example.com", Role: rbac.RoleRegistered})

	invite := func(email string) Member {
		rec := call(t, router, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{"email": email})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var m Member
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		return m
	}
	roleOf := func(id string) rbac.Role {
		p, err := store.GetProfile(t.Context(), id)
		require.NoError(t, err)
		return p.Role
	}

	member := invite("buyer@example.com")
	assert.Equal(t, rbac.RoleDealerStaff, roleOf(buyer.ID))
	// inviting again while already on staff keeps the remembered role
	invite("buyer@example.com")
	rec := call(t, router, http.MethodDelete, "/api/dealer/staff/"+member.ID, dealer.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, rbac.RoleBuyer, roleOf(buyer.ID))

	other := invite("fresh@example.com")
	rec = call(t, router, http.MethodDelete, "/api/dealer/staff/"+other.ID, dealer.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, rbac.RoleRegistered, roleOf(fresh.ID))
}

func TestStaffRemovalKeepsRoleChangedElsewhere(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	hire := store.Put(profiles.Profile{Email: "hire@example.com", Role: rbac.RoleVerified})

	rec := call(t, router, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{"email": "hire@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var member Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))

	_, err := store.SetRole(t.Context(), hire.ID, rbac.RoleInspector, nil)
	require.NoError(t, err)
	rec = call(t, router, http.MethodDelete, "/api/dealer/staff/"+member.ID, dealer.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	p, err := store.GetProfile(t.Context(), hire.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleInspector, p.Role)
}

type failingStore struct {
	*profiles.MemoryStore
	err error
}

func (s failingStore) AddStaff(context.Context, rbac.StaffPermissions) (rbac.StaffPermissions, error) {
	return rbac.StaffPermissions{}, s.err
}

func (s failingStore) RemoveStaff(context.Context, string, string) (rbac.StaffPermissions, error) {
	return rbac.StaffPermissions{}, s.err
}

func TestStaffWriteFailureLeavesProfileUntouched(t *testing.T) {
	store := profiles.NewMemoryStore()
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	hire := store.Put(profiles.Profile{Email: "hire@example.com", Role: rbac.RoleVerified})
	member := store.Put(profiles.Profile{Email: "m@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &dealer.ID})
	record, err := store.UpsertStaff(t.Context(), fullManager(dealer.ID, member.ID))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := profiles.NewViewer(store, r.Header.Get("X-Profile"))
			next.ServeHTTP(w, r.WithContext(profiles.WithViewer(r.Context(), viewer)))
		})
	})
	broken := failingStore{MemoryStore: store, err: errors.New("tx aborted")}
	r.Mount("/api/dealer/staff", NewHandler(broken, store, nil).Routes(rbac.NewEnforcer(gate.ResolveRole)))

	rec := call(t, r, http.MethodPost, "/api/dealer/staff", dealer.ID, map[string]any{"email": "hire@example.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	p, err := store.GetProfile(t.Context(), hire.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleVerified, p.Role)
	records, err := store.ListStaff(t.Context(), dealer.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	rec = call(t, r, http.MethodDelete, "/api/dealer/staff/"+record.ID, dealer.ID, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, profiles.NewViewer(store, member.ID).HasDealerStaffPermission(t.Context(), rbac.FlagManageLeads))
}

func TestStaffListFlagFilter(t *testing.T) {
	store := profiles.NewMemoryStore()
	router := newRouter(store)
	dealer := store.Put(profiles.Profile{Email: "dealer@example.com", Role: rbac.RoleDealer})
	manager := store.Put(profiles.Profile{Email: "m@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &dealer.ID})
	agent := store.Put(profiles.Profile{Email: "a@example.com", Role: rbac.RoleDealerStaff, ParentDealerID: &dealer.ID})
	store.PutStaff(fullManager(dealer.ID, manager.ID))
	store.PutStaff(rbac.StaffPermissions{DealerID: dealer.ID, StaffID: agent.ID, Role: rbac.StaffRoleSalesAgent, CanPostListings: true, IsActive: true})

	rec := call(t, router, http.MethodGet, "/api/dealer/staff?flag=CAN_ACCESS_BILLING", dealer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var billing []Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))
	require.Len(t, billing, 1)
	assert.Equal(t, manager.ID, billing[0].StaffID)

	rec = call(t, router, http.MethodGet, "/api/dealer/staff?flag=can_post_listings", dealer.ID, nil)
	var posters []Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posters))
	assert.Len(t, posters, 2)

	rec = call(t, router, http.MethodGet, "/api/dealer/staff?flag=can_fly", dealer.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func fullManager(dealerID, staffID string) rbac.StaffPermissions {
	return rbac.StaffPermissions{
		DealerID:              dealerID,
		StaffID:               staffID,
		Role:                  rbac.StaffRoleManager,
		CanPostListings:       true,
		CanManageLeads:        true,
		CanEditDealerSettings: true,
		CanAccessBilling:      true,
		IsActive:              true,
	}
}
