package profiles

import (
	"time"

	"github.com/motorlot/marketplace/backend/rbac"
)

// Profile is an authenticated identity. ReputationScore and ListingCount are
// maintained by the database; ParentDealerID is only set for dealer staff.
type Profile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Role            rbac.Role `json:"role"`
	ReputationScore int       `json:"reputation_score"`
	IsVerified      bool      `json:"is_verified"`
	ListingCount    int       `json:"listing_count"`
	ParentDealerID  *string   `json:"parent_dealer_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Credentials is the login projection of a profile.
type Credentials struct {
	ProfileID    string
	Email        string
	PasswordHash string
}
