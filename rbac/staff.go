package rbac

import "strings"

// StaffFlag names one capability bit on a dealer staff record.
type StaffFlag string

const (
	FlagPostListings       StaffFlag = "can_post_listings"
	FlagManageLeads        StaffFlag = "can_manage_leads"
	FlagEditDealerSettings StaffFlag = "can_edit_dealer_settings"
	FlagAccessBilling      StaffFlag = "can_access_billing"
)

// StaffRole is the job title of a staff member under a dealer.
type StaffRole string

const (
	StaffRoleSalesAgent StaffRole = "sales_agent"
	StaffRoleManager    StaffRole = "manager"
)

// ParseStaffRole normalizes raw into a known staff role.
func ParseStaffRole(raw string) (StaffRole, bool) {
	switch StaffRole(strings.ToLower(strings.TrimSpace(raw))) {
	case StaffRoleSalesAgent:
		return StaffRoleSalesAgent, true
	case StaffRoleManager:
		return StaffRoleManager, true
	default:
		return "", false
	}
}

// ParseStaffFlag normalizes raw into a known staff flag.
func ParseStaffFlag(raw string) (StaffFlag, bool) {
	flag := StaffFlag(strings.ToLower(strings.TrimSpace(raw)))
	switch flag {
	case FlagPostListings, FlagManageLeads, FlagEditDealerSettings, FlagAccessBilling:
		return flag, true
	default:
		return "", false
	}
}

// StaffPermissions is a staff member's capability grant under a dealer.
// IsActive=false is the soft-deleted state.
type StaffPermissions struct {
	ID                    string    `json:"id"`
	DealerID              string    `json:"dealer_id"`
	StaffID               string    `json:"staff_id"`
	Role                  StaffRole `json:"role"`
	CanPostListings       bool      `json:"can_post_listings"`
	CanManageLeads        bool      `json:"can_manage_leads"`
	CanEditDealerSettings bool      `json:"can_edit_dealer_settings"`
	CanAccessBilling      bool      `json:"can_access_billing"`
	IsActive              bool      `json:"is_active"`

	// PreviousRole is the profile role held before joining; removal
	// restores it.
	PreviousRole Role `json:"-"`
}

// Grants reports whether the record grants flag. Inactive records grant
// nothing.
func (p *StaffPermissions) Grants(flag StaffFlag) bool {
	if p == nil || !p.IsActive {
		return false
	}
	switch flag {
	case FlagPostListings:
		return p.CanPostListings
	case FlagManageLeads:
		return p.CanManageLeads
	case FlagEditDealerSettings:
		return p.CanEditDealerSettings
	case FlagAccessBilling:
		return p.CanAccessBilling
	default:
		return false
	}
}
