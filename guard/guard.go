package guard

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/motorlot/marketplace/backend/gate"
	"github.com/motorlot/marketplace/backend/internal/metrics"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// Check decides whether the viewer may see a page. An error denies.
type Check func(ctx context.Context, v *profiles.Viewer) (bool, error)

// Guard is a page-level condition the route table cannot express.
type Guard struct {
	Name     string
	Check    Check
	Fallback string
}

// Guards applies page guards using the viewer loaded at the request
// boundary.
type Guards struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a guard set.
func New(logger *zap.Logger, m *metrics.Metrics) *Guards {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guards{logger: logger, metrics: m}
}

// Require runs guards in order. Callers without identity go to the login
// page and the first failing guard redirects to its fallback. A guard that
// cannot decide sends the caller to rbac.DefaultFallbackPath, which no
// guard protects, so fallbacks pointing at each other cannot loop.
func (g *Guards) Require(guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := profiles.ViewerFromContext(r.Context())
			if !viewer.Authenticated() {
				gate.Deny(w, r, gate.ReasonUnauthenticated, gate.LoginURL(rbac.DefaultLoginPath, r.URL.Path))
				return
			}

			for _, guard := range guards {
				ok, err := guard.Check(r.Context(), viewer)
				if err != nil {
					g.logger.Warn("page guard check failed",
						zap.String("guard", guard.Name),
						zap.String("path", r.URL.Path),
						zap.String("profile_id", viewer.ID),
						zap.Error(err),
					)
					g.metrics.IncGuardDecision(guard.Name, "error")
					gate.Deny(w, r, gate.ReasonBackendError, rbac.DefaultFallbackPath)
					return
				}
				if !ok {
					g.logger.Info("page guard redirect",
						zap.String("guard", guard.Name),
						zap.String("path", r.URL.Path),
						zap.String("target", guard.fallback()),
					)
					g.metrics.IncGuardDecision(guard.Name, "deny")
					gate.Deny(w, r, gate.ReasonUnauthorized, guard.fallback())
					return
				}
				g.metrics.IncGuardDecision(guard.Name, "allow")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) fallback() string {
	if g.Fallback != "" {
		return g.Fallback
	}
	return rbac.DefaultFallbackPath
}

// AnyRole passes when the viewer holds one of roles.
func AnyRole(fallback string, roles ...rbac.Role) Guard {
	return Guard{
		Name: "any_role",
		Check: func(ctx context.Context, v *profiles.Viewer) (bool, error) {
			role, err := v.Role(ctx)
			if err != nil {
				return false, err
			}
			return rbac.IsRoleAllowed(role, roles), nil
		},
		Fallback: fallback,
	}
}

// DealerOnly passes for dealers.
func DealerOnly(fallback string) Guard {
	g := AnyRole(fallback, rbac.RoleDealer)
	g.Name = "dealer_only"
	return g
}

// DealerOrStaffWith passes for dealers, and for dealer staff whose active
// record grants flag.
func DealerOrStaffWith(flag rbac.StaffFlag, fallback string) Guard {
	return Guard{
		Name: "dealer_or_staff:" + string(flag),
		Check: func(ctx context.Context, v *profiles.Viewer) (bool, error) {
			role, err := v.Role(ctx)
			if err != nil {
				return false, err
			}
			switch role {
			case rbac.RoleDealer:
				return true, nil
			case rbac.RoleDealerStaff:
				return v.HasDealerStaffPermission(ctx, flag), nil
			default:
				return false, nil
			}
		},
		Fallback: fallback,
	}
}

// DealerDirectory reports whether a dealer has completed onboarding.
type DealerDirectory interface {
	Exists(ctx context.Context, profileID string) (bool, error)
}

// OnboardingPath is where dealers without a business profile are sent.
const OnboardingPath = "/onboarding/dealer"

// DealerOnboarded sends dealers without a dealer profile row to onboarding.
// Non-dealers pass; combine it with a role guard.
func DealerOnboarded(dealers DealerDirectory) Guard {
	return Guard{
		Name: "dealer_onboarded",
		Check: func(ctx context.Context, v *profiles.Viewer) (bool, error) {
			role, err := v.Role(ctx)
			if err != nil {
				return false, err
			}
			if role != rbac.RoleDealer {
				return true, nil
			}
			return dealers.Exists(ctx, v.ID)
		},
		Fallback: OnboardingPath,
	}
}

// OnboardingPending admits roles that may still become a dealer, and dealers
// whose business profile is missing. Onboarded dealers go to their dashboard.
func OnboardingPending(dealers DealerDirectory, dashboard string) Guard {
	return Guard{
		Name: "onboarding_pending",
		Check: func(ctx context.Context, v *profiles.Viewer) (bool, error) {
			role, err := v.Role(ctx)
			if err != nil {
				return false, err
			}
			switch role {
			case rbac.RoleRegistered, rbac.RoleVerified, rbac.RoleBuyer:
				return true, nil
			case rbac.RoleDealer:
				exists, err := dealers.Exists(ctx, v.ID)
				return !exists, err
			default:
				return false, nil
			}
		},
		Fallback: dashboard,
	}
}
