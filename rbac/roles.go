package rbac

import "strings"

// Role is the single account role stored on a profile row. Roles form a flat
// closed set; no role implies another.
type Role string

const (
	RoleGuest       Role = "guest"
	RoleRegistered  Role = "registered"
	RoleVerified    Role = "verified"
	RoleDealer      Role = "dealer"
	RoleDealerStaff Role = "dealer_staff"
	RoleBuyer       Role = "buyer"
	RoleInspector   Role = "inspector"
	RoleModerator   Role = "moderator"
	RoleAdmin       Role = "admin"
)

// RoleInfo carries display metadata for a role.
type RoleInfo struct {
	Role        Role   `json:"role"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Registry lists every role in display order.
var Registry = []RoleInfo{
	{Role: RoleGuest, Label: "Guest", Description: "Anonymous visitor browsing public listings"},
	{Role: RoleRegistered, Label: "Registered", Description: "Signed-up private account"},
	{Role: RoleVerified, Label: "Verified", Description: "Private account with verified identity"},
	{Role: RoleDealer, Label: "Dealer", Description: "Dealership owner account"},
	{Role: RoleDealerStaff, Label: "Dealer staff", Description: "Staff member acting on behalf of a dealer"},
	{Role: RoleBuyer, Label: "Buyer", Description: "Account shopping for vehicles"},
	{Role: RoleInspector, Label: "Inspector", Description: "Certified vehicle inspector"},
	{Role: RoleModerator, Label: "Moderator", Description: "Content and listing moderation"},
	{Role: RoleAdmin, Label: "Administrator", Description: "Full platform administration"},
}

// AllRoles returns the closed role set in registry order.
func AllRoles() []Role {
	roles := make([]Role, 0, len(Registry))
	for _, info := range Registry {
		roles = append(roles, info.Role)
	}
	return roles
}

// ParseRole normalizes raw into a known role.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, info := range Registry {
		if info.Role == candidate {
			return candidate, true
		}
	}
	return "", false
}

// IsRoleAllowed reports whether role is a member of allowed. It is plain set
// containment: admin passes only when admin is listed.
func IsRoleAllowed(role Role, allowed []Role) bool {
	if role == "" {
		return false
	}
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

// Permission represents an actionable verb within the API surface.
type Permission string

const (
	PermissionViewListings       Permission = "listings:view"
	PermissionManageListings     Permission = "listings:manage"
	PermissionCreateLeads        Permission = "leads:create"
	PermissionManageLeads        Permission = "leads:manage"
	PermissionManageStaff        Permission = "staff:manage"
	PermissionSubmitInspections  Permission = "inspections:submit"
	PermissionViewInspections    Permission = "inspections:view"
	PermissionManageRoles        Permission = "profiles:manage_roles"
	PermissionViewProfiles       Permission = "profiles:view"
	PermissionViewAnalytics      Permission = "analytics:view"
	PermissionEditDealerSettings Permission = "dealer_settings:edit"
	PermissionViewAccessControl  Permission = "rbac:view"
	PermissionOnboard            Permission = "onboarding:start"
)

// RoleMatrix enumerates which roles satisfy a permission. Dealer staff
// entries only admit the role; the per-flag check happens in the handler.
var RoleMatrix = map[Permission][]Role{
	PermissionViewListings: {
		RoleRegistered,
		RoleVerified,
		RoleDealer,
		RoleDealerStaff,
		RoleBuyer,
		RoleInspector,
		RoleModerator,
		RoleAdmin,
	},
	PermissionManageListings: {
		RoleRegistered,
		RoleVerified,
		RoleDealer,
		RoleDealerStaff,
		RoleBuyer,
		RoleModerator,
		RoleAdmin,
	},
	PermissionCreateLeads: {
		RoleRegistered,
		RoleVerified,
		RoleBuyer,
		RoleDealer,
		RoleDealerStaff,
	},
	PermissionManageLeads: {
		RoleRegistered,
		RoleVerified,
		RoleBuyer,
		RoleDealer,
		RoleDealerStaff,
		RoleAdmin,
	},
	PermissionManageStaff: {
		RoleDealer,
	},
	PermissionSubmitInspections: {
		RoleInspector,
	},
	PermissionViewInspections: {
		RoleRegistered,
		RoleVerified,
		RoleDealer,
		RoleDealerStaff,
		RoleBuyer,
		RoleInspector,
		RoleModerator,
		RoleAdmin,
	},
	PermissionManageRoles: {
		RoleAdmin,
	},
	PermissionViewProfiles: {
		RoleAdmin,
		RoleModerator,
	},
	PermissionViewAnalytics: {
		RoleDealer,
		RoleDealerStaff,
		RoleAdmin,
	},
	PermissionEditDealerSettings: {
		RoleDealer,
		RoleDealerStaff,
	},
	PermissionViewAccessControl: {
		RoleAdmin,
		RoleModerator,
	},
	PermissionOnboard: {
		RoleRegistered,
		RoleVerified,
		RoleBuyer,
	},
}
