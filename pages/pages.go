// Package pages serves the JSON page models behind the edge gate. Each
// protected page re-checks the viewer with its own guards before loading
// role-specific data.
package pages

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/dealers"
	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/guard"
	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/inspections"
	"github.com/motorlot/marketplace/backend/leads"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
	"github.com/motorlot/marketplace/backend/staff"
)

const (
	dashboardPath = "/dealer/dashboard"
	profilePath   = "/profile"
	adminPath     = "/admin"
)

// Deps are the stores page models read from.
type Deps struct {
	Profiles    profiles.Repository
	Dealers     dealers.Store
	Staff       staff.Store
	Listings    listings.Repository
	Leads       leads.Store
	Inspections inspections.Store
	Routes      rbac.RouteTable
}

// Handler serves page models.
type Handler struct {
	deps   Deps
	guards *guard.Guards
	logger *zap.Logger
}

func NewHandler(deps Deps, guards *guard.Guards, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, guards: guards, logger: logger}
}

// Page is the envelope every page model is rendered in.
type Page struct {
	Path   string       `json:"path"`
	Title  string       `json:"title"`
	Viewer *ViewerModel `json:"viewer,omitempty"`
	Flash  gate.Reason  `json:"flash,omitempty"`
	Data   any          `json:"data,omitempty"`
}

// ViewerModel is the identity summary shown in page chrome.
type ViewerModel struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role rbac.Role `json:"role"`
}

// Routes registers the page routes. Mount it behind the gate middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	onboarded := guard.DealerOnboarded(h.deps.Dealers)

	r.Get("/", h.home)
	r.Get("/login", h.login)
	r.With(h.guards.Require()).Get(profilePath, h.profile)

	r.Route("/dealer", func(r chi.Router) {
		r.With(h.guards.Require(
			guard.AnyRole(profilePath, rbac.RoleDealer, rbac.RoleDealerStaff), onboarded,
		)).Get("/dashboard", h.dealerDashboard)
		r.With(h.guards.Require(
			guard.DealerOrStaffWith(rbac.FlagEditDealerSettings, profilePath), onboarded,
		)).Get("/settings", h.dealerSettings)
		r.With(h.guards.Require(
			guard.DealerOnly(dashboardPath), onboarded,
		)).Get("/staff", h.dealerStaff)
		r.With(h.guards.Require(
			guard.DealerOrStaffWith(rbac.FlagManageLeads, dashboardPath),
		)).Get("/leads", h.dealerLeads)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(h.guards.Require(guard.AnyRole("/", rbac.RoleAdmin, rbac.RoleModerator))).Get("/", h.admin)
		r.With(h.guards.Require(guard.AnyRole(adminPath, rbac.RoleAdmin))).Get("/dealers", h.adminDealers)
	})

	r.With(h.guards.Require(
		guard.AnyRole(profilePath, rbac.RoleBuyer, rbac.RoleRegistered, rbac.RoleVerified),
	)).Get("/buyer/alerts", h.buyerAlerts)
	r.With(h.guards.Require(
		guard.AnyRole("/", rbac.RoleInspector, rbac.RoleAdmin),
	)).Get("/inspector/queue", h.inspectorQueue)
	r.With(h.guards.Require(
		guard.OnboardingPending(h.deps.Dealers, dashboardPath),
	)).Get(guard.OnboardingPath, h.onboarding)
	return r
}

// render writes the page envelope, filling in the viewer summary when the
// caller is signed in.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, title string, data any) {
	page := Page{Path: r.URL.Path, Title: title, Data: data}
	viewer := profiles.ViewerFromContext(r.Context())
	if viewer.Authenticated() {
		if p, err := viewer.Profile(r.Context()); err == nil {
			page.Viewer = &ViewerModel{ID: p.ID, Name: p.Name, Role: p.Role}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

// fail redirects away when page data cannot be loaded.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	h.logger.Warn("page data load failed",
		zap.String("path", r.URL.Path),
		zap.String("data", what),
		zap.Error(err),
	)
	gate.Deny(w, r, gate.ReasonBackendError, rbac.DefaultFallbackPath)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	return raw
}
