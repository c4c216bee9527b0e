package staff

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

// inviteSources are the roles a profile may hold when a dealer invites it.
var inviteSources = []rbac.Role{rbac.RoleRegistered, rbac.RoleVerified, rbac.RoleBuyer, rbac.RoleDealerStaff}

// Handler exposes dealer staff management endpoints.
type Handler struct {
	store    Store
	profiles profiles.Repository
	logger   *zap.Logger
}

// NewHandler creates a staff handler.
func NewHandler(store Store, repo profiles.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, profiles: repo, logger: logger}
}

// Routes registers staff routes. Only dealers manage their staff.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Use(enforcer.Authorize(rbac.PermissionManageStaff))
	r.Get("/", h.list)
	r.Post("/", h.invite)
	r.Patch("/{staffID}", h.update)
	r.Delete("/{staffID}", h.remove)
	return r
}

// Member is a staff record joined with the staff member's contact details.
type Member struct {
	rbac.StaffPermissions
	Name  string `json:"name"`
	Email string `json:"email"`
}

type flagsPayload struct {
	Role                  *string `json:"role"`
	CanPostListings       *bool   `json:"can_post_listings"`
	CanManageLeads        *bool   `json:"can_manage_leads"`
	CanEditDealerSettings *bool   `json:"can_edit_dealer_settings"`
	CanAccessBilling      *bool   `json:"can_access_billing"`
}

// apply copies set fields onto perms.
func (p flagsPayload) apply(perms *rbac.StaffPermissions) error {
	if p.Role != nil {
		role, ok := rbac.ParseStaffRole(*p.Role)
		if !ok {
			return errors.New("role must be sales_agent or manager")
		}
		perms.Role = role
	}
	if p.CanPostListings != nil {
		perms.CanPostListings = *p.CanPostListings
	}
	if p.CanManageLeads != nil {
		perms.CanManageLeads = *p.CanManageLeads
	}
	if p.CanEditDealerSettings != nil {
		perms.CanEditDealerSettings = *p.CanEditDealerSettings
	}
	if p.CanAccessBilling != nil {
		perms.CanAccessBilling = *p.CanAccessBilling
	}
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var flag rbac.StaffFlag
	if raw := r.URL.Query().Get("flag"); raw != "" {
		parsed, ok := rbac.ParseStaffFlag(raw)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "unknown staff flag")
			return
		}
		flag = parsed
	}

	dealerID := profiles.ViewerFromContext(r.Context()).ID
	records, err := h.store.ListStaff(r.Context(), dealerID)
	if err != nil {
		h.logger.Error("list staff failed", zap.String("dealer_id", dealerID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list staff")
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	members := make([]Member, 0, len(records))
	for _, rec := range records {
		if !rec.IsActive && !includeInactive {
			continue
		}
		if flag != "" && !rec.Grants(flag) {
			continue
		}
		m := Member{StaffPermissions: rec}
		if p, err := h.profiles.GetProfile(r.Context(), rec.StaffID); err == nil {
			m.Name, m.Email = p.Name, p.Email
		}
		members = append(members, m)
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		flagsPayload
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		httpx.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	perms := rbac.StaffPermissions{Role: rbac.StaffRoleSalesAgent, IsActive: true}
	if err := payload.flagsPayload.apply(&perms); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	dealerID := profiles.ViewerFromContext(r.Context()).ID
	target, err := h.profiles.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "no account with that email")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to look up account")
		return
	}
	if target.ID == dealerID {
		httpx.Error(w, http.StatusBadRequest, "a dealer cannot invite themselves")
		return
	}
	if !rbac.IsRoleAllowed(target.Role, inviteSources) {
		httpx.Error(w, http.StatusConflict, "account cannot join dealer staff from role "+string(target.Role))
		return
	}
	if target.Role == rbac.RoleDealerStaff && (target.ParentDealerID == nil || *target.ParentDealerID != dealerID) {
		httpx.Error(w, http.StatusConflict, "account already works for another dealer")
		return
	}

	perms.DealerID = dealerID
	perms.StaffID = target.ID
	saved, err := h.store.AddStaff(r.Context(), perms)
	if err != nil {
		h.logger.Error("add staff member failed",
			zap.String("dealer_id", dealerID),
			zap.String("profile_id", target.ID),
			zap.Error(err),
		)
		httpx.Error(w, http.StatusInternalServerError, "failed to add staff member")
		return
	}

	h.logger.Info("staff member added",
		zap.String("dealer_id", dealerID),
		zap.String("staff_id", target.ID),
		zap.String("staff_role", string(saved.Role)),
	)
	httpx.WriteJSON(w, http.StatusCreated, Member{StaffPermissions: saved, Name: target.Name, Email: target.Email})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload flagsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	perms, ok := h.load(w, r)
	if !ok {
		return
	}
	if !perms.IsActive {
		httpx.Error(w, http.StatusConflict, "staff member was removed")
		return
	}
	if err := payload.apply(&perms); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.store.UpsertStaff(r.Context(), perms)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to update staff member")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

// remove deactivates the record and gives the member back the role they
// held before joining.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	perms, ok := h.load(w, r)
	if !ok {
		return
	}
	if !perms.IsActive {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.store.RemoveStaff(r.Context(), perms.DealerID, perms.ID); err != nil {
		h.logger.Error("remove staff member failed", zap.String("profile_id", perms.StaffID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to remove staff member")
		return
	}

	h.logger.Info("staff member removed", zap.String("dealer_id", perms.DealerID), zap.String("staff_id", perms.StaffID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (rbac.StaffPermissions, bool) {
	dealerID := profiles.ViewerFromContext(r.Context()).ID
	perms, err := h.store.GetStaff(r.Context(), dealerID, chi.URLParam(r, "staffID"))
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "staff member not found")
			return rbac.StaffPermissions{}, false
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to load staff member")
		return rbac.StaffPermissions{}, false
	}
	return perms, true
}
