package listings

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/internal/timeutil"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

const defaultCurrency = "EUR"

// Handler provides read/write APIs for vehicle listings.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler creates a listings handler.
func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes configures the HTTP routes for listing resources. Browsing is
// public; writes require a role with a listing allowance.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.search)
	r.With(enforcer.Authorize(rbac.PermissionManageListings)).Get("/mine", h.mine)
	r.With(enforcer.Authorize(rbac.PermissionManageListings)).Post("/", h.create)
	r.Get("/{listingID}", h.get)
	r.With(enforcer.Authorize(rbac.PermissionManageListings)).Patch("/{listingID}", h.update)
	r.With(enforcer.Authorize(rbac.PermissionManageListings)).Delete("/{listingID}", h.delete)
	return r
}

type listingPayload struct {
	Make        *string `json:"make"`
	Model       *string `json:"model"`
	Year        *int    `json:"year"`
	Mileage     *int    `json:"mileage_km"`
	PriceCents  *int64  `json:"price_cents"`
	Currency    *string `json:"currency"`
	Location    *string `json:"location"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// apply copies set fields onto l and validates the result.
func (p listingPayload) apply(l *Listing, now time.Time) error {
	if p.Make != nil {
		l.Make = strings.TrimSpace(*p.Make)
	}
	if p.Model != nil {
		l.Model = strings.TrimSpace(*p.Model)
	}
	if p.Year != nil {
		l.Year = *p.Year
	}
	if p.Mileage != nil {
		l.Mileage = *p.Mileage
	}
	if p.PriceCents != nil {
		l.PriceCents = *p.PriceCents
	}
	if p.Currency != nil {
		l.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.Location != nil {
		l.Location = strings.TrimSpace(*p.Location)
	}
	if p.Description != nil {
		l.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		status, ok := ParseStatus(*p.Status)
		if !ok {
			return errors.New("status must be draft, active, sold, or archived")
		}
		l.Status = status
	}

	if l.Make == "" || l.Model == "" {
		return errors.New("make and model are required")
	}
	lo, hi := timeutil.ModelYearBounds(now)
	if l.Year < lo || l.Year > hi {
		return errors.New("year is out of range")
	}
	if l.Mileage < 0 {
		return errors.New("mileage_km cannot be negative")
	}
	if l.PriceCents <= 0 {
		return errors.New("price_cents must be positive")
	}
	if len(l.Currency) != 3 {
		return errors.New("currency must be a three letter code")
	}
	return nil
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Status = StatusActive

	listings, err := h.repo.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("search listings failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to search listings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(listings))
}

// mine lists every listing the viewer sells, including dealer inventory for
// staff allowed to post.
func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.Error(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}

	ownerID, status, msg := h.sellerFor(r)
	if status != 0 {
		httpx.Error(w, status, msg)
		return
	}
	filter.OwnerID = ownerID

	listings, err := h.repo.Search(r.Context(), filter)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(listings))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload listingPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusForbidden, "unable to verify role")
		return
	}
	limit, ok := LimitFor(role)
	if !ok {
		httpx.Error(w, http.StatusForbidden, "role cannot list vehicles")
		return
	}

	ownerID, status, msg := h.sellerFor(r)
	if status != 0 {
		httpx.Error(w, status, msg)
		return
	}

	listing := Listing{OwnerID: ownerID, CreatedBy: viewer.ID, Currency: defaultCurrency, Status: StatusActive}
	if err := payload.apply(&listing, time.Now()); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.repo.Create(r.Context(), listing, limit)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			httpx.Error(w, http.StatusConflict, "listing limit of "+strconv.Itoa(limit)+" reached")
			return
		}
		h.logger.Error("create listing failed", zap.String("owner_id", ownerID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create listing")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	listing, err := h.repo.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if listing.Status != StatusActive && !CanManage(r, listing) {
		httpx.Error(w, http.StatusNotFound, "listing not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload listingPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	listing, err := h.repo.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if !CanManage(r, listing) {
		httpx.Error(w, http.StatusForbidden, "not allowed to edit this listing")
		return
	}
	if err := payload.apply(&listing, time.Now()); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.repo.Update(r.Context(), listing)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	listing, err := h.repo.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	if !CanManage(r, listing) {
		httpx.Error(w, http.StatusForbidden, "not allowed to delete this listing")
		return
	}
	if err := h.repo.Delete(r.Context(), listing.ID); err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.logger.Info("listing deleted",
		zap.String("listing_id", listing.ID),
		zap.String("deleted_by", profiles.ViewerFromContext(r.Context()).ID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// sellerFor resolves whose inventory the viewer writes to. A non-zero status
// reports why they cannot.
func (h *Handler) sellerFor(r *http.Request) (string, int, string) {
	viewer := profiles.ViewerFromContext(r.Context())
	role, err := viewer.Role(r.Context())
	if err != nil {
		return "", http.StatusForbidden, "unable to verify role"
	}
	if role != rbac.RoleDealerStaff {
		return viewer.ID, 0, ""
	}
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagPostListings)
	if err != nil {
		return "", http.StatusForbidden, "can_post_listings permission required"
	}
	return dealerID, 0, ""
}

// CanManage reports whether the request viewer may edit listing: its owner,
// staff of the owning dealer allowed to post, or moderation roles.
func CanManage(r *http.Request, listing Listing) bool {
	viewer := profiles.ViewerFromContext(r.Context())
	if !viewer.Authenticated() {
		return false
	}
	if viewer.ID == listing.OwnerID {
		return true
	}
	if viewer.HasRole(r.Context(), rbac.RoleModerator, rbac.RoleAdmin) {
		return true
	}
	dealerID, err := viewer.ActForDealer(r.Context(), rbac.FlagPostListings)
	return err == nil && dealerID == listing.OwnerID
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "listing not found")
		return
	}
	h.logger.Error("listing store failed", zap.Error(err))
	httpx.Error(w, http.StatusInternalServerError, "failed to load listing")
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	page := httpx.ParsePage(r, 20, 100)
	f := Filter{
		Make:   strings.TrimSpace(q.Get("make")),
		Model:  strings.TrimSpace(q.Get("model")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	ints := map[string]*int{"year_min": &f.YearMin, "year_max": &f.YearMax}
	for key, dest := range ints {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return Filter{}, errors.New(key + " must be an integer")
			}
			*dest = v
		}
	}
	prices := map[string]*int64{"price_min": &f.PriceMin, "price_max": &f.PriceMax}
	for key, dest := range prices {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Filter{}, errors.New(key + " must be an integer")
			}
			*dest = v
		}
	}
	return f, nil
}

func nonNil(listings []Listing) []Listing {
	if listings == nil {
		return []Listing{}
	}
	return listings
}
