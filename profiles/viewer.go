package profiles

import (
	"context"
	"errors"
	"sync"

	"github.com/motorlot/marketplace/backend/rbac"
)

// Viewer is the request-scoped identity. It is built once at the request
// boundary and passed down through the context; each lookup hits the store
// at most once per request and nothing survives the request.
type Viewer struct {
	ID    string
	store Store

	roleOnce sync.Once
	role     rbac.Role
	roleErr  error

	profileOnce sync.Once
	profile     *Profile
	profileErr  error

	staffOnce sync.Once
	staff     *rbac.StaffPermissions
	staffErr  error
}

// NewViewer creates a viewer for the profile id. An empty id is an
// anonymous viewer.
func NewViewer(store Store, id string) *Viewer {
	return &Viewer{ID: id, store: store}
}

// Authenticated reports whether the viewer carries an identity.
func (v *Viewer) Authenticated() bool {
	return v != nil && v.ID != ""
}

// Role returns the viewer's current role using the minimal role projection.
func (v *Viewer) Role(ctx context.Context) (rbac.Role, error) {
	if !v.Authenticated() {
		return "", rbac.ErrUnauthenticated
	}
	v.roleOnce.Do(func() {
		v.role, v.roleErr = v.store.GetRole(ctx, v.ID)
		if v.roleErr == nil && v.role == "" {
			v.roleErr = ErrUnknownRole
		}
	})
	return v.role, v.roleErr
}

// Profile returns the viewer's full profile row.
func (v *Viewer) Profile(ctx context.Context) (*Profile, error) {
	if !v.Authenticated() {
		return nil, rbac.ErrUnauthenticated
	}
	v.profileOnce.Do(func() {
		p, err := v.store.GetProfile(ctx, v.ID)
		if err != nil {
			v.profileErr = err
			return
		}
		v.profile = &p
	})
	return v.profile, v.profileErr
}

// StaffPermissions returns the viewer's active staff record.
func (v *Viewer) StaffPermissions(ctx context.Context) (*rbac.StaffPermissions, error) {
	if !v.Authenticated() {
		return nil, rbac.ErrUnauthenticated
	}
	v.staffOnce.Do(func() {
		v.staff, v.staffErr = v.store.GetActiveStaffPermissions(ctx, v.ID)
	})
	return v.staff, v.staffErr
}

// HasRole reports whether the viewer's role is one of roles. Any lookup
// failure answers false.
func (v *Viewer) HasRole(ctx context.Context, roles ...rbac.Role) bool {
	role, err := v.Role(ctx)
	if err != nil {
		return false
	}
	return rbac.IsRoleAllowed(role, roles)
}

// HasDealerStaffPermission is false unless the viewer is exactly
// dealer_staff and holds an active staff record granting flag.
func (v *Viewer) HasDealerStaffPermission(ctx context.Context, flag rbac.StaffFlag) bool {
	if !v.HasRole(ctx, rbac.RoleDealerStaff) {
		return false
	}
	perms, err := v.StaffPermissions(ctx)
	if err != nil || perms == nil {
		return false
	}
	return perms.Grants(flag)
}

// ErrNoDealer is returned when the viewer does not act for any dealer.
var ErrNoDealer = errors.New("profiles: viewer does not act for a dealer")

// ActingDealerID returns the dealer the viewer acts for: their own id for
// dealers, the owning dealer for active staff.
func (v *Viewer) ActingDealerID(ctx context.Context) (string, error) {
	role, err := v.Role(ctx)
	if err != nil {
		return "", err
	}
	switch role {
	case rbac.RoleDealer:
		return v.ID, nil
	case rbac.RoleDealerStaff:
		perms, err := v.StaffPermissions(ctx)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", ErrNoDealer
			}
			return "", err
		}
		if perms == nil || !perms.IsActive {
			return "", ErrNoDealer
		}
		return perms.DealerID, nil
	default:
		return "", ErrNoDealer
	}
}

// ErrStaffFlag is returned when dealer staff lack the capability flag.
var ErrStaffFlag = errors.New("profiles: staff permission not granted")

// ActForDealer returns the dealer id the viewer may act for with flag:
// dealers always, dealer staff only when their active record grants flag.
func (v *Viewer) ActForDealer(ctx context.Context, flag rbac.StaffFlag) (string, error) {
	role, err := v.Role(ctx)
	if err != nil {
		return "", err
	}
	switch role {
	case rbac.RoleDealer:
		return v.ID, nil
	case rbac.RoleDealerStaff:
		if !v.HasDealerStaffPermission(ctx, flag) {
			return "", ErrStaffFlag
		}
		return v.ActingDealerID(ctx)
	default:
		return "", ErrNoDealer
	}
}

type viewerKey struct{}

// WithViewer stores v on ctx.
func WithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the request viewer, or nil.
func ViewerFromContext(ctx context.Context) *Viewer {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(viewerKey{}).(*Viewer)
	return v
}
