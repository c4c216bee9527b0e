package leads

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

const maxMessageLength = 2000

// Handler provides buyer enquiries and the seller lead inbox.
type Handler struct {
	store    Store
	listings listings.Repository
	logger   *zap.Logger
}

// NewHandler creates a leads handler.
func NewHandler(store Store, listingRepo listings.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, listings: listingRepo, logger: logger}
}

// ListingRoutes registers routes mounted under a listing, which must supply
// the listingID URL parameter.
func (h *Handler) ListingRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionCreateLeads)).Post("/", h.create)
	return r
}

// Routes registers inbox routes.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Use(enforcer.Authorize(rbac.PermissionManageLeads))
	r.Get("/", h.list)
	r.Patch("/{leadID}", h.setStatus)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
		Phone   string `json:"phone"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		httpx.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		httpx.Error(w, http.StatusBadRequest, "message is too long")
		return
	}

	listing, err := h.listings.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		if errors.Is(err, listings.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.Error("load listing for lead failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	if listing.Status != listings.StatusActive {
		httpx.Error(w, http.StatusConflict, "listing is not accepting enquiries")
		return
	}

	viewer := profiles.ViewerFromContext(r.Context())
	if dealerID, err := viewer.ActingDealerID(r.Context()); viewer.ID == listing.OwnerID || (err == nil && dealerID == listing.OwnerID) {
		httpx.Error(w, http.StatusBadRequest, "cannot enquire about your own listing")
		return
	}

	lead, err := h.store.Create(r.Context(), Lead{
		ListingID: listing.ID,
		OwnerID:   listing.OwnerID,
		SenderID:  viewer.ID,
		Message:   message,
		Phone:     strings.TrimSpace(payload.Phone),
	})
	if err != nil {
		h.logger.Error("create lead failed", zap.String("listing_id", listing.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create lead")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, lead)
}

// list serves ?box=received (default) or ?box=sent. Dealer staff see their
// dealer's inbox only with can_manage_leads; admins see every lead.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := httpx.ParsePage(r, 50, 200)
	filter := Filter{Limit: page.Limit, Offset: page.Offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}

	viewer := profiles.ViewerFromContext(r.Context())
	switch r.URL.Query().Get("box") {
	case "sent":
		filter.SenderID = viewer.ID
	case "", "received":
		ownerID, ok := h.inboxOwner(r, viewer)
		if !ok {
			httpx.Error(w, http.StatusForbidden, "can_manage_leads permission required")
			return
		}
		filter.OwnerID = ownerID
	default:
		httpx.Error(w, http.StatusBadRequest, "box must be received or sent")
		return
	}

	leads, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list leads failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []Lead{}
	}
	httpx.WriteJSON(w, http.StatusOK, leads)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	status, ok := ParseStatus(payload.Status)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "unknown status")
		return
	}

	lead, err := h.store.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	viewer := profiles.ViewerFromContext(r.Context())
	if !viewer.HasRole(r.Context(), rbac.RoleAdmin) && !sellsFor(r, viewer, lead.OwnerID) {
		httpx.Error(w, http.StatusForbidden, "not allowed to manage this lead")
		return
	}

	updated, err := h.store.SetStatus(r.Context(), lead.ID, status)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

// inboxOwner returns the owner filter for the received box. Admins get an
// empty filter.
func (h *Handler) inboxOwner(r *http.Request, viewer *profiles.Viewer) (string, bool) {
	role, err := viewer.Role(r.Context())
	if err != nil {
		return "", false
	}
	switch role {
	case rbac.RoleAdmin:
		return "", true
	case rbac.RoleDealerStaff:
		dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagManageLeads)
		return dealerID, err == nil
	default:
		return viewer.ID, true
	}
}

// sellsFor reports whether the viewer is ownerID or staff managing ownerID's
// leads.
func sellsFor(r *http.Request, viewer *profiles.Viewer, ownerID string) bool {
	if viewer.ID == ownerID {
		return true
	}
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagManageLeads)
	return err == nil && dealerID == ownerID
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "lead not found")
		return
	}
	h.logger.Error("lead store failed", zap.Error(err))
	httpx.Error(w, http.StatusInternalServerError, "failed to load lead")
}
