package inspections

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/internal/timeutil"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// clockSkew tolerates inspector devices running slightly ahead.
const clockSkew = 5 * time.Minute

type Handler struct {
	store    Store
	listings listings.Repository
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandler(store Store, listingRepo listings.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, listings: listingRepo, logger: logger, now: time.Now}
}

// Routes registers the inspector's submission routes.
func (h *Handler) Routes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.Use(enforcer.Authorize(rbac.PermissionSubmitInspections))
	r.Get("/", h.mine)
	r.Post("/", h.create)
	return r
}

// ListingRoutes registers routes mounted under a listing.
func (h *Handler) ListingRoutes(enforcer *rbac.Enforcer) chi.Router {
	r := chi.NewRouter()
	r.With(enforcer.Authorize(rbac.PermissionViewInspections)).Get("/", h.forListing)
	return r
}

type payload struct {
	ListingID   string          `json:"listing_id"`
	Grade       string          `json:"grade"`
	OdometerKM  *int            `json:"odometer_km"`
	Checklist   []ChecklistItem `json:"checklist"`
	Summary     string          `json:"summary"`
	InspectedAt string          `json:"inspected_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var p payload
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	grade, ok := ParseGrade(p.Grade)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "grade must be excellent, good, fair, or poor")
		return
	}
	if p.OdometerKM != nil && *p.OdometerKM < 0 {
		httpx.Error(w, http.StatusBadRequest, "odometer_km cannot be negative")
		return
	}

	now := h.now().UTC()
	inspectedAt := now
	parsed, err := timeutil.ParseOptionalTimestamp(p.InspectedAt)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "inspected_at must be a timestamp")
		return
	}
	if parsed != nil {
		if parsed.After(now.Add(clockSkew)) {
			httpx.Error(w, http.StatusBadRequest, "inspected_at cannot be in the future")
			return
		}
		inspectedAt = *parsed
	}

	listing, err := h.listings.Get(r.Context(), strings.TrimSpace(p.ListingID))
	if err != nil {
		if errors.Is(err, listings.ErrNotFound) {
			httpx.Error(w, http.StatusBadRequest, "listing_id does not reference a listing")
			return
		}
		h.logger.Error("load listing for inspection failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	if listing.Status == listings.StatusArchived {
		httpx.Error(w, http.StatusConflict, "listing is archived")
		return
	}

	viewer := profiles.ViewerFromContext(r.Context())
	created, err := h.store.Create(r.Context(), Inspection{
		ListingID:   listing.ID,
		InspectorID: viewer.ID,
		Grade:       grade,
		OdometerKM:  p.OdometerKM,
		Checklist:   normalizeChecklist(p.Checklist),
		Summary:     strings.TrimSpace(p.Summary),
		InspectedAt: inspectedAt,
	})
	if err != nil {
		h.logger.Error("create inspection failed", zap.String("listing_id", listing.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to create inspection")
		return
	}
	h.logger.Info("inspection submitted",
		zap.String("inspection_id", created.ID),
		zap.String("listing_id", listing.ID),
		zap.String("inspector_id", viewer.ID),
	)
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		day, err := timeutil.ParseDate(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "since must be a YYYY-MM-DD date")
			return
		}
		since = day
	}

	viewer := profiles.ViewerFromContext(r.Context())
	reports, err := h.store.ListByInspector(r.Context(), viewer.ID)
	if err != nil {
		h.logger.Error("list own inspections failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list inspections")
		return
	}
	if !since.IsZero() {
		kept := reports[:0]
		for _, report := range reports {
			if !report.InspectedAt.Before(since) {
				kept = append(kept, report)
			}
		}
		reports = kept
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(reports))
}

// forListing lists reports for a listing the viewer can see.
func (h *Handler) forListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		if errors.Is(err, listings.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "listing not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	if listing.Status != listings.StatusActive && !listings.CanManage(r, listing) {
		httpx.Error(w, http.StatusNotFound, "listing not found")
		return
	}

	reports, err := h.store.ListByListing(r.Context(), listing.ID)
	if err != nil {
		h.logger.Error("list inspections failed", zap.String("listing_id", listing.ID), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "failed to list inspections")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(reports))
}

func nonNil(reports []Inspection) []Inspection {
	if reports == nil {
		return []Inspection{}
	}
	return reports
}
