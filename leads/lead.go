package leads

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("leads: not found")

// Status tracks how far a seller has followed up on a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusClosed    Status = "closed"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusNew, StatusContacted, StatusQualified, StatusClosed:
		return s, true
	default:
		return "", false
	}
}

// Lead is a buyer enquiry on a listing. OwnerID is copied from the listing at
// creation so the seller's inbox does not join through listings.
type Lead struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	OwnerID   string    `json:"owner_id"`
	SenderID  string    `json:"sender_id"`
	Message   string    `json:"message"`
	Phone     string    `json:"phone,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter selects leads for an inbox. Empty fields are ignored.
type Filter struct {
	OwnerID  string
	SenderID string
	Status   Status
	Limit    int
	Offset   int
}
