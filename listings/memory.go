package listings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Counter maintains the denormalized listing_count on profiles.
// profiles.MemoryStore satisfies it.
type Counter interface {
	AdjustListingCount(ctx context.Context, profileID string, delta int) error
}

// MemoryStore is an in-memory Repository.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]Listing
	counter  Counter
}

func NewMemoryStore(counter Counter) *MemoryStore {
	return &MemoryStore{listings: map[string]Listing{}, counter: counter}
}

func (s *MemoryStore) Create(ctx context.Context, l Listing, limit int) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := 0
	for _, existing := range s.listings {
		if existing.OwnerID == l.OwnerID {
			held++
		}
	}
	if held >= limit {
		return Listing{}, ErrLimitReached
	}

	now := time.Now().UTC()
	l.ID = uuid.NewString()
	l.CreatedAt, l.UpdatedAt = now, now
	if s.counter != nil {
		if err := s.counter.AdjustListingCount(ctx, l.OwnerID, 1); err != nil {
			return Listing{}, err
		}
	}
	s.listings[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) Update(_ context.Context, l Listing) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.listings[l.ID]
	if !ok {
		return Listing{}, ErrNotFound
	}
	l.OwnerID, l.CreatedBy, l.CreatedAt = existing.OwnerID, existing.CreatedBy, existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	s.listings[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.listings, id)
	if s.counter != nil {
		return s.counter.AdjustListingCount(ctx, l.OwnerID, -1)
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, f Filter) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Listing
	for _, l := range s.listings {
		if matches(l, f) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > len(out) {
		f.Offset = len(out)
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(l Listing, f Filter) bool {
	switch {
	case f.Make != "" && !strings.EqualFold(l.Make, f.Make):
		return false
	case f.Model != "" && !strings.EqualFold(l.Model, f.Model):
		return false
	case f.YearMin > 0 && l.Year < f.YearMin:
		return false
	case f.YearMax > 0 && l.Year > f.YearMax:
		return false
	case f.PriceMin > 0 && l.PriceCents < f.PriceMin:
		return false
	case f.PriceMax > 0 && l.PriceCents > f.PriceMax:
		return false
	case f.Status != "" && l.Status != f.Status:
		return false
	case f.OwnerID != "" && l.OwnerID != f.OwnerID:
		return false
	}
	return true
}
