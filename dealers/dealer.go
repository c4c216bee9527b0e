package dealers

import "time"

// DealerProfile is the business record created when a profile onboards as a
// dealer. Coordinates are stored as raw strings (lat/long).
type DealerProfile struct {
	ProfileID    string    `json:"profile_id"`
	BusinessName string    `json:"business_name"`
	Location     string    `json:"location,omitempty"`
	Latitude     string    `json:"latitude,omitempty"`
	Longitude    string    `json:"longitude,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Settings are the dealer-editable fields.
type Settings struct {
	BusinessName string `json:"business_name"`
	Location     string `json:"location"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	Description  string `json:"description"`
}
