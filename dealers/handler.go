package dealers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// onboardingSources lists the roles allowed to transition into each target.
var onboardingSources = map[rbac.Role][]rbac.Role{
	rbac.RoleDealer: {rbac.RoleRegistered, rbac.RoleVerified, rbac.RoleBuyer},
	rbac.RoleBuyer:  {rbac.RoleRegistered, rbac.RoleVerified},
}

// CanOnboard reports whether from may transition to target.
func CanOnboard(from, target rbac.Role) bool {
	return rbac.IsRoleAllowed(from, onboardingSources[target])
}

// Handler serves onboarding, dealer settings, and the admin dealer listing.
type Handler struct {
	dealers  Store
	profiles profiles.Repository
	logger   *zap.Logger
}

func NewHandler(dealers Store, repo profiles.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dealers: dealers, profiles: repo, logger: logger}
}

// OnboardingRoutes registers /api/onboarding.
func (h *Handler) OnboardingRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionOnboard)).Get("/", h.onboardingOptions)
	r.Group(func(r chi.Router) {
		r.Use(enforcer.AuthorizeRoles(authenticatedRoles()...))
		r.Post("/dealer", h.onboardDealer)
		r.Post("/buyer", h.onboardBuyer)
	})
	return r
}

// SettingsRoutes registers /api/dealer/settings.
func (h *Handler) SettingsRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Use(enforcer.Authorize(rbac.PermissionEditDealerSettings))
	r.Get("/", h.getSettings)
	r.Patch("/", h.updateSettings)
	return r
}

// AdminRoutes registers /api/admin/dealers.
func (h *Handler) AdminRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionViewProfiles)).Get("/", h.list)
	return r
}

func authenticatedRoles() []rbac.Role {
	var roles []rbac.Role
	for _, role := range rbac.AllRoles() {
		if role != rbac.RoleGuest {
			roles = append(roles, role)
		}
	}
	return roles
}

func (h *Handler) onboardingOptions(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusForbidden, "unable to verify role")
		return
	}

	targets := []rbac.Role{}
	for _, target := range []rbac.Role{rbac.RoleDealer, rbac.RoleBuyer} {
		if CanOnboard(role, target) {
			targets = append(targets, target)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"role": role, "targets": targets})
}

func (h *Handler) onboardDealer(w http.ResponseWriter, r *http.Request) {
	var payload Settings
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.BusinessName = strings.TrimSpace(payload.BusinessName)
	if payload.BusinessName == "" {
		httpx.Error(w, http.StatusBadRequest, "business_name is required")
		return
	}

	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusForbidden, "unable to verify role")
		return
	}
	switch {
	case role == rbac.RoleDealer:
		// dealers promoted by an administrator still owe a business profile
		exists, err := h.dealers.Exists(r.Context(), viewer.ID)
		if err != nil {
			httpx.Error(w, http.StatusInternalServerError, "failed to load dealer profile")
			return
		}
		if exists {
			httpx.Error(w, http.StatusConflict, "dealer profile already exists")
			return
		}
	case !CanOnboard(role, rbac.RoleDealer):
		httpx.Error(w, http.StatusConflict, "cannot become a dealer from role "+string(role))
		return
	}

	// the row is created first so a failed role update can be retried
	dealer, err := h.dealers.Create(r.Context(), DealerProfile{
		ProfileID:    viewer.ID,
		BusinessName: payload.BusinessName,
		Location:     strings.TrimSpace(payload.Location),
		Latitude:     strings.TrimSpace(payload.Latitude),
		Longitude:    strings.TrimSpace(payload.Longitude),
		Description:  strings.TrimSpace(payload.Description),
	})
	if errors.Is(err, ErrExists) {
		dealer, err = h.dealers.Get(r.Context(), viewer.ID)
	}
	if err != nil {
		h.logger.Error("create dealer profile failed", zap.String("profile_id", viewer.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create dealer profile")
		return
	}

	profile, err := h.profiles.SetRole(r.Context(), viewer.ID, rbac.RoleDealer, nil)
	if err != nil {
		h.logger.Error("promote to dealer failed", zap.String("profile_id", viewer.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	h.logger.Info("dealer onboarded", zap.String("profile_id", viewer.ID), zap.String("from_role", string(role)))
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"profile": profile, "dealer": dealer})
}

func (h *Handler) onboardBuyer(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusForbidden, "unable to verify role")
		return
	}
	if !CanOnboard(role, rbac.RoleBuyer) {
		httpx.Error(w, http.StatusConflict, "cannot become a buyer from role "+string(role))
		return
	}

	profile, err := h.profiles.SetRole(r.Context(), viewer.ID, rbac.RoleBuyer, nil)
	if err != nil {
		h.logger.Error("promote to buyer failed", zap.String("profile_id", viewer.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := h.actingDealer(w, r)
	if !ok {
		return
	}
	dealer, err := h.dealers.Get(r.Context(), dealerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "dealer profile not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to load dealer profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dealer)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	dealerID, ok := h.actingDealer(w, r)
	if !ok {
		return
	}

	var payload Settings
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.BusinessName = strings.TrimSpace(payload.BusinessName)
	if payload.BusinessName == "" {
		httpx.Error(w, http.StatusBadRequest, "business_name is required")
		return
	}

	dealer, err := h.dealers.Update(r.Context(), dealerID, payload)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "dealer profile not found")
			return
		}
		h.logger.Error("update dealer settings failed", zap.String("dealer_id", dealerID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update dealer profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dealer)
}

// actingDealer resolves the dealer whose settings the viewer may edit.
func (h *Handler) actingDealer(w http.ResponseWriter, r *http.Request) (string, bool) {
	viewer := profiles.ViewerFromContext(r.Context())
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagEditDealerSettings)
	if err != nil {
		httpx.Error(w, http.StatusForbidden, "dealer settings permission required")
		return "", false
	}
	return dealerID, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 50, 200)
	dealers, err := h.dealers.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("list dealers failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list dealers")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dealers)
}
