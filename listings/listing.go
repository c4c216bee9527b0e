package listings

import (
	"errors"
	"time"

	"github.com/motorlot/marketplace/backend/rbac"
)

var (
	ErrNotFound     = errors.New("listings: not found")
	ErrLimitReached = errors.New("listings: listing limit reached")
)

// Status is the lifecycle state of a listing.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusSold     Status = "sold"
	StatusArchived Status = "archived"
)

// ParseStatus normalizes raw into a known status.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusDraft, StatusActive, StatusSold, StatusArchived:
		return s, true
	default:
		return "", false
	}
}

// Listing is a vehicle offered for sale. OwnerID is the seller's profile; for
// dealer inventory it is the dealer even when staff created it.
type Listing struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CreatedBy   string    `json:"created_by"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	Year        int       `json:"year"`
	Mileage     int       `json:"mileage_km"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter narrows a listing search. Zero values are ignored.
type Filter struct {
	Make     string
	Model    string
	YearMin  int
	YearMax  int
	PriceMin int64
	PriceMax int64
	Status   Status
	OwnerID  string
	Limit    int
	Offset   int
}

// Limits is the number of listings each seller role may hold.
var Limits = map[rbac.Role]int{
	rbac.RoleRegistered: 1,
	rbac.RoleVerified:   5,
	rbac.RoleBuyer:      1,
	rbac.RoleDealer:     500,
}

// LimitFor returns the allowance for role. Dealer staff post against their
// dealer's allowance.
func LimitFor(role rbac.Role) (int, bool) {
	if role == rbac.RoleDealerStaff {
		role = rbac.RoleDealer
	}
	limit, ok := Limits[role]
	return limit, ok
}
