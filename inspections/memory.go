package inspections

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu          sync.Mutex
	inspections []Inspection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, in Inspection) (Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = uuid.NewString()
	in.CreatedAt = time.Now().UTC()
	s.inspections = append(s.inspections, in)
	return in, nil
}

func (s *MemoryStore) ListByListing(_ context.Context, listingID string) ([]Inspection, error) {
	return s.filter(func(in Inspection) bool { return in.ListingID == listingID }), nil
}

func (s *MemoryStore) ListByInspector(_ context.Context, inspectorID string) ([]Inspection, error) {
	return s.filter(func(in Inspection) bool { return in.InspectorID == inspectorID }), nil
}

func (s *MemoryStore) filter(keep func(Inspection) bool) []Inspection {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Inspection
	for _, in := range s.inspections {
		if keep(in) {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InspectedAt.After(out[j].InspectedAt) })
	return out
}
