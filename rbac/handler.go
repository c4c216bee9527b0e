package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/marketplace/backend/httpx"
)

// Handler exposes the role registry and the page protection table.
type Handler struct {
	routes RouteTable
}

// NewHandler creates an RBAC handler serving the given route table.
func NewHandler(routes RouteTable) *Handler {
	return &Handler{routes: routes}
}

// Routes registers RBAC routes.
func (h *Handler) Routes(enforcer *Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Get("/roles", h.listRoles)
	r.With(enforcer.Authorize(PermissionViewAccessControl)).Get("/routes", h.listRoutes)
	r.With(enforcer.Authorize(PermissionViewAccessControl)).Get("/matrix", h.matrix)
	return r
}

func (h *Handler) listRoles(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Registry)
}

// RouteEntry is a route table entry with its resolved redirect targets.
type RouteEntry struct {
	RouteProtection
	LoginTarget    string `json:"login_target"`
	FallbackTarget string `json:"fallback_target"`
	ShadowedBy     string `json:"shadowed_by,omitempty"`
}

// Describe lists t in match order, flagging entries an earlier one shadows.
func Describe(t RouteTable) []RouteEntry {
	shadowed := make(map[string]string)
	for _, s := range t.Shadowed() {
		shadowed[s.Entry.Path] = s.ShadowedBy.Path
	}

	entries := make([]RouteEntry, 0, len(t))
	for _, route := range t {
		entries = append(entries, RouteEntry{
			RouteProtection: route,
			LoginTarget:     route.LoginTarget(),
			FallbackTarget:  route.FallbackTarget(),
			ShadowedBy:      shadowed[route.Path],
		})
	}
	return entries
}

func (h *Handler) listRoutes(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Describe(h.routes))
}

func (h *Handler) matrix(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, RoleMatrix)
}
