package gate

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allow  bool
	Reason Reason
	Target string
	Route  *rbac.RouteProtection
}

// Gate enforces a route protection table in front of page handlers.
type Gate struct {
	routes  rbac.RouteTable
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a gate over routes.
func New(routes rbac.RouteTable, logger *zap.Logger, m *metrics.Metrics) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{routes: routes, logger: logger, metrics: m}
}

// Decide evaluates the request. It performs at most one role lookup and
// never retries.
func (g *Gate) Decide(r *http.Request) Decision {
	route := g.routes.Match(r.URL.Path)
	if route == nil {
		return Decision{Allow: true, Reason: ReasonPublic}
	}

	viewer := profiles.ViewerFromContext(r.Context())
	if !viewer.Authenticated() {
		return Decision{
			Reason: ReasonUnauthenticated,
			Target: LoginURL(route.LoginTarget(), r.URL.Path),
			Route:  route,
		}
	}

	started := time.Now()
	role, err := viewer.Role(r.Context())
	g.metrics.ObserveRoleLookup(time.Since(started))
	if err != nil {
		reason := ReasonBackendError
		if errors.Is(err, profiles.ErrNotFound) || errors.Is(err, profiles.ErrUnknownRole) {
			reason = ReasonUnauthorized
		}
		if reason == ReasonBackendError {
			g.logger.Warn("gate role lookup failed",
				zap.String("path", r.URL.Path),
				zap.String("profile_id", viewer.ID),
				zap.Error(err),
			)
		}
		return Decision{Reason: reason, Target: route.FallbackTarget(), Route: route}
	}

	if !rbac.IsRoleAllowed(role, route.AllowedRoles) {
		return Decision{Reason: ReasonUnauthorized, Target: route.FallbackTarget(), Route: route}
	}
	return Decision{Allow: true, Reason: ReasonAuthorized, Route: route}
}

// Middleware redirects denied requests and passes allowed ones through
// untouched. Cookies already written to w, such as a refreshed session, stay
// on the redirect response.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		g.record(r, d)
		if d.Allow {
			next.ServeHTTP(w, r)
			return
		}
		Deny(w, r, d.Reason, d.Target)
	})
}

func (g *Gate) record(r *http.Request, d Decision) {
	outcome := "redirect"
	if d.Allow {
		outcome = "allow"
	}
	g.metrics.IncGateDecision(outcome, string(d.Reason))

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("reason", string(d.Reason)),
	}
	if d.Route != nil {
		fields = append(fields, zap.String("route", d.Route.Path))
	}
	if d.Allow {
		g.logger.Debug("gate allow", fields...)
		return
	}
	g.logger.Info("gate redirect", append(fields, zap.String("target", d.Target))...)
}

// LoginURL appends the requested path as the redirect parameter.
func LoginURL(target, requested string) string {
	u, err := url.Parse(target)
	if err != nil {
		return rbac.DefaultLoginPath + "?" + url.Values{"redirect": {requested}}.Encode()
	}
	q := u.Query()
	q.Set("redirect", requested)
	u.RawQuery = q.Encode()
	return u.String()
}
