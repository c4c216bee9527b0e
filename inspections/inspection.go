package inspections

import (
	"encoding/json"
	"strings"
	"time"
)

// Grade is the inspector's overall condition rating.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

func ParseGrade(raw string) (Grade, bool) {
	switch g := Grade(strings.ToLower(strings.TrimSpace(raw))); g {
	case GradeExcellent, GradeGood, GradeFair, GradePoor:
		return g, true
	default:
		return "", false
	}
}

// ChecklistItem is one checked component of the vehicle.
type ChecklistItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// Inspection is an inspector's report on a listing.
type Inspection struct {
	ID          string          `json:"id"`
	ListingID   string          `json:"listing_id"`
	InspectorID string          `json:"inspector_id"`
	Grade       Grade           `json:"grade"`
	OdometerKM  *int            `json:"odometer_km,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	InspectedAt time.Time       `json:"inspected_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// normalizeChecklist trims names and drops unnamed or repeated items.
func normalizeChecklist(raw []ChecklistItem) []ChecklistItem {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	items := make([]ChecklistItem, 0, len(raw))
	for _, item := range raw {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, ChecklistItem{Name: name, Passed: item.Passed, Notes: strings.TrimSpace(item.Notes)})
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func encodeChecklist(items []ChecklistItem) ([]byte, error) {
	if len(items) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}
