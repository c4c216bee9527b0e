package profiles

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/rbac"
)

// Handler exposes self-service and administrative profile endpoints.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler creates a profiles handler.
func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Routes registers self-service routes.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Use(enforcer.AuthorizeRoles(authenticatedRoles()...))
	r.Get("/", h.me)
	r.Patch("/", h.updateMe)
	return r
}

// AdminRoutes registers role-administration routes.
func (h *Handler) AdminRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionViewProfiles)).Get("/", h.list)
	r.With(enforcer.Authorize(rbac.PermissionManageRoles)).Patch("/{profileID}/role", h.setRole)
	return r
}

func authenticatedRoles() []rbac.Role {
	roles := make([]rbac.Role, 0, len(rbac.Registry))
	for _, role := range rbac.AllRoles() {
		if role != rbac.RoleGuest {
			roles = append(roles, role)
		}
	}
	return roles
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFromContext(r.Context())
	profile, err := viewer.Profile(r.Context())
	if err != nil {
		h.logger.Warn("load own profile failed", zap.String("profile_id", viewer.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		httpx.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	viewer := ViewerFromContext(r.Context())
	profile, err := h.repo.UpdateContact(r.Context(), viewer.ID, name, strings.TrimSpace(payload.Phone))
	if err != nil {
		h.logger.Error("update profile failed", zap.String("profile_id", viewer.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 50, 200)
	filter := ListFilter{Limit: page.Limit, Offset: page.Offset}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, ok := rbac.ParseRole(raw)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "unknown role")
			return
		}
		filter.Role = role
	}

	profiles, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list profiles failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profiles)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if _, err := uuid.Parse(profileID); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var payload struct {
		Role           string  `json:"role"`
		ParentDealerID *string `json:"parent_dealer_id"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	role, ok := rbac.ParseRole(payload.Role)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "unknown role")
		return
	}

	parent, err := h.validateParent(r, role, payload.ParentDealerID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.repo.SetRole(r.Context(), profileID, role, parent)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("set role failed", zap.String("profile_id", profileID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	h.logger.Info("profile role changed",
		zap.String("profile_id", profileID),
		zap.String("role", string(role)),
		zap.String("changed_by", ViewerFromContext(r.Context()).ID),
	)
	httpx.WriteJSON(w, http.StatusOK, profile)
}

// validateParent enforces that only dealer staff reference a parent dealer,
// and that the reference points at a dealer.
func (h *Handler) validateParent(r *http.Request, role rbac.Role, parentID *string) (*string, error) {
	if role != rbac.RoleDealerStaff {
		return nil, nil
	}
	if parentID == nil || strings.TrimSpace(*parentID) == "" {
		return nil, errors.New("parent_dealer_id is required for dealer_staff")
	}
	id := strings.TrimSpace(*parentID)
	parentRole, err := h.repo.GetRole(r.Context(), id)
	if err != nil || parentRole != rbac.RoleDealer {
		return nil, errors.New("parent_dealer_id must reference a dealer")
	}
	return &id, nil
}
