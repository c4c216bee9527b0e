package pages

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/leads"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
	"github.com/motorlot/marketplace/backend/staff"
)

const recentLimit = 12

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	recent, err := h.deps.Listings.Search(r.Context(), listings.Filter{Status: listings.StatusActive, Limit: recentLimit})
	if err != nil {
		// the landing page stays up without inventory
		h.logger.Warn("load recent listings failed", zap.Error(err))
		recent = nil
	}
	if recent == nil {
		recent = []listings.Listing{}
	}
	h.render(w, r, "Motorlot", map[string]any{"recent_listings": recent})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	if target := safeRedirect(r.URL.Query().Get("redirect")); target != "" {
		data["redirect"] = target
	}
	page := Page{Path: r.URL.Path, Title: "Sign in", Data: data}
	if reason, ok := gate.ConsumeFlash(w, r); ok {
		page.Flash = reason
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	p, err := viewer.Profile(r.Context())
	if err != nil {
		h.fail(w, r, "profile", err)
		return
	}
	limit, canSell := listings.LimitFor(p.Role)
	data := map[string]any{"profile": p, "can_sell": canSell}
	if canSell {
		data["listing_limit"] = limit
	}
	h.render(w, r, "Your profile", data)
}

func (h *Handler) dealerDashboard(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	dealerID, err := viewer.ActingDealerID(r.Context())
	if err != nil {
		h.fail(w, r, "acting dealer", err)
		return
	}
	dealer, err := h.deps.Dealers.Get(r.Context(), dealerID)
	if err != nil {
		h.fail(w, r, "dealer profile", err)
		return
	}
	inventory, err := h.deps.Listings.Search(r.Context(), listings.Filter{OwnerID: dealerID, Limit: recentLimit})
	if err != nil {
		h.fail(w, r, "inventory", err)
		return
	}

	data := map[string]any{"dealer": dealer, "inventory": nonNil(inventory)}
	// staff see shortcuts only for what their flags grant
	perms := map[rbac.StaffFlag]bool{}
	for _, flag := range []rbac.StaffFlag{rbac.FlagPostListings, rbac.FlagManageLeads, rbac.FlagEditDealerSettings, rbac.FlagAccessBilling} {
		perms[flag] = viewer.HasRole(r.Context(), rbac.RoleDealer) || viewer.HasDealerStaffPermission(r.Context(), flag)
	}
	data["permissions"] = perms
	h.render(w, r, "Dealer dashboard", data)
}

func (h *Handler) dealerSettings(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagEditDealerSettings)
	if err != nil {
		h.fail(w, r, "acting dealer", err)
		return
	}
	dealer, err := h.deps.Dealers.Get(r.Context(), dealerID)
	if err != nil {
		h.fail(w, r, "dealer profile", err)
		return
	}
	h.render(w, r, "Dealer settings", map[string]any{"dealer": dealer})
}

func (h *Handler) dealerStaff(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	records, err := h.deps.Staff.ListStaff(r.Context(), viewer.ID)
	if err != nil {
		h.fail(w, r, "staff", err)
		return
	}
	members := make([]staff.Member, 0, len(records))
	for _, rec := range records {
		m := staff.Member{StaffPermissions: rec}
		if p, err := h.deps.Profiles.GetProfile(r.Context(), rec.StaffID); err == nil {
			m.Name, m.Email = p.Name, p.Email
		}
		members = append(members, m)
	}
	h.render(w, r, "Staff", map[string]any{"members": members})
}

func (h *Handler) dealerLeads(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagManageLeads)
	if err != nil {
		h.fail(w, r, "acting dealer", err)
		return
	}
	inbox, err := h.deps.Leads.List(r.Context(), leads.Filter{OwnerID: dealerID, Limit: 50})
	if err != nil {
		h.fail(w, r, "leads", err)
		return
	}
	if inbox == nil {
		inbox = []leads.Lead{}
	}
	h.render(w, r, "Leads", map[string]any{"leads": inbox})
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "Administration", map[string]any{
		"routes":      rbac.Describe(h.deps.Routes),
		"permissions": rbac.RoleMatrix,
	})
}

func (h *Handler) adminDealers(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Dealers.List(r.Context(), 100, 0)
	if err != nil {
		h.fail(w, r, "dealers", err)
		return
	}
	h.render(w, r, "Dealers", map[string]any{"dealers": list})
}

func (h *Handler) buyerAlerts(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	sent, err := h.deps.Leads.List(r.Context(), leads.Filter{SenderID: viewer.ID, Limit: 50})
	if err != nil {
		h.fail(w, r, "sent leads", err)
		return
	}
	if sent == nil {
		sent = []leads.Lead{}
	}
	h.render(w, r, "Your enquiries", map[string]any{"enquiries": sent})
}

func (h *Handler) inspectorQueue(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	reports, err := h.deps.Inspections.ListByInspector(r.Context(), viewer.ID)
	if err != nil {
		h.fail(w, r, "inspections", err)
		return
	}
	h.render(w, r, "Inspection queue", map[string]any{"submitted": reports, "count": len(reports)})
}

func (h *Handler) onboarding(w http.ResponseWriter, r *http.Request) {
	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		h.fail(w, r, "role", err)
		return
	}
	h.render(w, r, "Become a dealer", map[string]any{"current_role": role})
}

func nonNil(in []listings.Listing) []listings.Listing {
	if in == nil {
		return []listings.Listing{}
	}
	return in
}
