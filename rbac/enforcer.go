package rbac

import (
	"errors"
	"net/http"

	"github.com/motorlot/marketplace/backend/httpx"
)

// ErrUnauthenticated is returned by a RoleResolver when the request carries
// no identity.
var ErrUnauthenticated = errors.New("rbac: unauthenticated")

// RoleResolver extracts the caller's current role for the request.
type RoleResolver func(r *http.Request) (Role, error)

// Enforcer coordinates RBAC evaluation for JSON API handlers.
type Enforcer struct {
	resolve RoleResolver
}

// NewEnforcer constructs an RBAC enforcer with the provided resolver.
func NewEnforcer(resolver RoleResolver) *Enforcer {
	return &Enforcer{resolve: resolver}
}

// Authorize ensures the caller holds one of the roles mapped to the supplied
// permission. Missing identity is rejected with 401; resolver failures and
// role mismatches are rejected with 403.
func (e *Enforcer) Authorize(permission Permission) func(http.Handler) http.Handler {
	return e.AuthorizeRoles(RoleMatrix[permission]...)
}

// AuthorizeRoles is Authorize with an explicit allow-list.
func (e *Enforcer) AuthorizeRoles(allowed ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := e.resolve(r)
			if errors.Is(err, ErrUnauthenticated) {
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if err != nil {
				httpx.Error(w, http.StatusForbidden, "unable to verify role")
				return
			}

			if IsRoleAllowed(role, allowed) {
				next.ServeHTTP(w, r)
				return
			}

			httpx.Error(w, http.StatusForbidden, "insufficient role membership")
		})
	}
}
