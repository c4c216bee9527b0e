package gate

import (
	"net/http"

	"github.com/motorlot/marketplace/backend/auth"
	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// Identify builds the request viewer from the session claims attached by
// auth.SessionManager.Middleware. Requests without claims get an anonymous
// viewer, so downstream code can always rely on one being present.
func Identify(store profiles.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if claims := auth.FromContext(r.Context()); claims != nil {
				id = claims.ProfileID
			}
			viewer := profiles.NewViewer(store, id)
			next.ServeHTTP(w, r.WithContext(profiles.WithViewer(r.Context(), viewer)))
		})
	}
}

// ResolveRole is an rbac.RoleResolver backed by the request viewer.
func ResolveRole(r *http.Request) (rbac.Role, error) {
	viewer := profiles.ViewerFromContext(r.Context())
	if !viewer.Authenticated() {
		return "", rbac.ErrUnauthenticated
	}
	return viewer.Role(r.Context())
}
