package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/auth"
	"github.com/motorlot/marketplace/backend/currency"
	"github.com/motorlot/marketplace/backend/dealers"
	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/guard"
	"github.com/motorlot/marketplace/backend/httpx"
	"github.com/motorlot/marketplace/backend/inspections"
	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/leads"
	"github.com/motorlot/marketplace/backend/listings"
	"github.com/motorlot/marketplace/backend/pages"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
	"github.com/motorlot/marketplace/backend/staff"
)

// app holds the wired dependencies the router is built from.
type app struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	sessions *auth.SessionManager
	routes   rbac.RouteTable
	timeout  time.Duration

	profiles    profiles.Repository
	dealers     dealers.Store
	staff       staff.Store
	listings    listings.Repository
	leads       leads.Store
	inspections inspections.Store
	limiter     *auth.LoginRateLimiter
	currency    *currency.Converter
}

func newRouter(a app) http.Handler {
	if a.timeout <= 0 {
		a.timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		httpx.RequestLogger(a.logger),
		middleware.Recoverer,
		middleware.Timeout(a.timeout),
	)
	router.Use(a.sessions.Middleware)
	router.Use(gate.Identify(a.profiles))

	router.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", a.metrics.Handler())

	enforcer := rbac.NewEnforcer(gate.ResolveRole)

	listingsHandler := listings.NewHandler(a.listings, a.logger.Named("listings"))
	leadsHandler := leads.NewHandler(a.leads, a.listings, a.logger.Named("leads"))
	inspectionsHandler := inspections.NewHandler(a.inspections, a.listings, a.logger.Named("inspections"))
	dealersHandler := dealers.NewHandler(a.dealers, a.profiles, a.logger.Named("dealers"))
	profilesHandler := profiles.NewHandler(a.profiles, a.logger.Named("profiles"))

	listingRoutes := listingsHandler.Routes(enforcer)
	listingRoutes.Mount("/{listingID}/leads", leadsHandler.ListingRoutes(enforcer))
	listingRoutes.Mount("/{listingID}/inspections", inspectionsHandler.ListingRoutes(enforcer))

	router.Route("/api", func(r chi.Router) {
		r.Mount("/auth", auth.NewHandler(a.profiles, a.sessions, a.limiter, a.logger.Named("auth")).Routes())
		r.Mount("/rbac", rbac.NewHandler(a.routes).Routes(enforcer))
		r.Mount("/profile", profilesHandler.Routes(enforcer))
		r.Mount("/admin/profiles", profilesHandler.AdminRoutes(enforcer))
		r.Mount("/admin/dealers", dealersHandler.AdminRoutes(enforcer))
		r.Mount("/onboarding", dealersHandler.OnboardingRoutes(enforcer))
		r.Mount("/dealer/settings", dealersHandler.SettingsRoutes(enforcer))
		r.Mount("/dealer/staff", staff.NewHandler(a.staff, a.profiles, a.logger.Named("staff")).Routes(enforcer))
		r.Mount("/listings", listingRoutes)
		r.Mount("/leads", leadsHandler.Routes(enforcer))
		r.Mount("/inspections", inspectionsHandler.Routes(enforcer))
		r.Mount("/currency", a.currency.Routes())
	})

	// pages sit behind the edge gate; the API enforces permissions itself
	pageHandler := pages.NewHandler(pages.Deps{
		Profiles:    a.profiles,
		Dealers:     a.dealers,
		Staff:       a.staff,
		Listings:    a.listings,
		Leads:       a.leads,
		Inspections: a.inspections,
		Routes:      a.routes,
	}, guard.New(a.logger.Named("guard"), a.metrics), a.logger.Named("pages"))

	router.Group(func(r chi.Router) {
		r.Use(gate.New(a.routes, a.logger.Named("gate"), a.metrics).Middleware)
		r.Mount("/", pageHandler.Routes())
	})
	return router
}
