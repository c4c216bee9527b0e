package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.Mutex
	leads map[string]Lead
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leads: map[string]Lead{}}
}

func (s *MemoryStore) Create(_ context.Context, l Lead) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	l.ID = uuid.NewString()
	l.Status = StatusNew
	l.CreatedAt, l.UpdatedAt = now, now
	s.leads[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	l.Status, l.UpdatedAt = status, time.Now().UTC()
	s.leads[id] = l
	return l, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Lead
	for _, l := range s.leads {
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		if f.SenderID != "" && l.SenderID != f.SenderID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, l)
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
