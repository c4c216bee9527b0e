package rbac

import "strings"

const (
	// DefaultLoginPath receives unauthenticated callers of a protected route.
	DefaultLoginPath = "/login"
	// DefaultFallbackPath receives authenticated callers lacking the role.
	DefaultFallbackPath = "/"
)

// RouteProtection gates a URL subtree to a set of roles.
type RouteProtection struct {
	Path         string `json:"path"`
	AllowedRoles []Role `json:"allowed_roles"`
	RedirectTo   string `json:"redirect_to,omitempty"`
}

// LoginTarget is where an unauthenticated caller is sent.
func (p RouteProtection) LoginTarget() string {
	if p.RedirectTo != "" {
		return p.RedirectTo
	}
	return DefaultLoginPath
}

// FallbackTarget is where an authenticated caller without the role is sent.
func (p RouteProtection) FallbackTarget() string {
	if p.RedirectTo != "" {
		return p.RedirectTo
	}
	return DefaultFallbackPath
}

// RouteTable is scanned in declaration order; the first matching entry wins.
type RouteTable []RouteProtection

// DefaultRoutes is the page protection table for the marketplace.
var DefaultRoutes = RouteTable{
	{
		Path:         "/admin",
		AllowedRoles: []Role{RoleAdmin, RoleModerator},
	},
	{
		Path:         "/moderation",
		AllowedRoles: []Role{RoleModerator, RoleAdmin},
	},
	{
		Path:         "/dealer",
		AllowedRoles: []Role{RoleDealer, RoleDealerStaff},
	},
	{
		Path:         "/inspector",
		AllowedRoles: []Role{RoleInspector, RoleAdmin},
	},
	{
		Path:         "/buyer",
		AllowedRoles: []Role{RoleBuyer, RoleRegistered, RoleVerified, RoleDealer, RoleDealerStaff, RoleAdmin, RoleModerator},
		RedirectTo:   "/login",
	},
	{
		Path:         "/onboarding",
		AllowedRoles: []Role{RoleRegistered, RoleVerified, RoleBuyer, RoleDealer},
	},
	{
		Path: "/profile",
		AllowedRoles: []Role{
			RoleRegistered, RoleVerified, RoleDealer, RoleDealerStaff,
			RoleBuyer, RoleInspector, RoleModerator, RoleAdmin,
		},
	},
	{
		Path: "/messages",
		AllowedRoles: []Role{
			RoleRegistered, RoleVerified, RoleDealer, RoleDealerStaff,
			RoleBuyer, RoleInspector, RoleModerator, RoleAdmin,
		},
	},
	{
		Path:         "/favorites",
		AllowedRoles: []Role{RoleRegistered, RoleVerified, RoleBuyer, RoleDealer, RoleDealerStaff},
	},
}

// MatchProtectedRoute matches pathname against DefaultRoutes.
func MatchProtectedRoute(pathname string) *RouteProtection {
	return DefaultRoutes.Match(pathname)
}

// Match returns the first entry covering pathname, or nil when the path is
// unprotected. Matching is segment aware: "/dealer" covers "/dealer" and
// "/dealer/leads" but not "/dealership".
func (t RouteTable) Match(pathname string) *RouteProtection {
	if pathname == "" {
		pathname = "/"
	}
	for i := range t {
		if covers(t[i].Path, pathname) {
			return &t[i]
		}
	}
	return nil
}

// ShadowedRoute describes a table entry that can never be selected.
type ShadowedRoute struct {
	Entry      RouteProtection
	ShadowedBy RouteProtection
}

// Shadowed reports entries fully covered by an earlier entry.
func (t RouteTable) Shadowed() []ShadowedRoute {
	var out []ShadowedRoute
	for j := range t {
		for i := 0; i < j; i++ {
			if covers(t[i].Path, t[j].Path) {
				out = append(out, ShadowedRoute{Entry: t[j], ShadowedBy: t[i]})
				break
			}
		}
	}
	return out
}

func covers(prefix, pathname string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(pathname, prefix) || pathname == strings.TrimSuffix(prefix, "/")
	}
	return pathname == prefix || strings.HasPrefix(pathname, prefix+"/")
}
