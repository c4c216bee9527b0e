package profiles

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motorlot/marketplace/backend/rbac"
)

// MemoryStore is an in-memory Repository used when no database is wired,
// and by tests. Setting Err makes every read fail with it.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]Profile
	passwords map[string]string
	staff     []rbac.StaffPermissions

	Err       error
	RoleCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  map[string]Profile{},
		passwords: map[string]string{},
	}
}

// Put inserts or replaces a profile, assigning an id when empty.
func (s *MemoryStore) Put(p Profile) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	s.profiles[p.ID] = p
	return p
}

// PutStaff appends a staff record.
func (s *MemoryStore) PutStaff(perms rbac.StaffPermissions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perms.ID == "" {
		perms.ID = uuid.NewString()
	}
	s.staff = append(s.staff, perms)
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return Profile{}, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetRole(_ context.Context, id string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoleCalls++
	if s.Err != nil {
		return "", s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return "", ErrNotFound
	}
	if _, known := rbac.ParseRole(string(p.Role)); !known {
		return "", ErrUnknownRole
	}
	return p.Role, nil
}

func (s *MemoryStore) GetActiveStaffPermissions(_ context.Context, id string) (*rbac.StaffPermissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for i := len(s.staff) - 1; i >= 0; i-- {
		if s.staff[i].StaffID == id && s.staff[i].IsActive {
			perms := s.staff[i]
			return &perms, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Create(_ context.Context, params CreateParams) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(params.Email)
	for _, p := range s.profiles {
		if p.Email == email {
			return Profile{}, ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	p := Profile{
		ID:        uuid.NewString(),
		Name:      params.Name,
		Email:     email,
		Role:      rbac.RoleRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.profiles[p.ID] = p
	s.passwords[p.ID] = params.PasswordHash
	return p, nil
}

func (s *MemoryStore) FindCredentials(_ context.Context, email string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return Credentials{}, s.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for id, p := range s.profiles {
		if p.Email == email {
			return Credentials{ProfileID: id, Email: p.Email, PasswordHash: s.passwords[id]}, nil
		}
	}
	return Credentials{}, ErrNotFound
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return Profile{}, s.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range s.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (s *MemoryStore) UpdateContact(_ context.Context, id, name, phone string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Name, p.Phone, p.UpdatedAt = name, phone, time.Now().UTC()
	s.profiles[id] = p
	return p, nil
}

func (s *MemoryStore) SetRole(_ context.Context, id string, role rbac.Role, parentDealerID *string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Role, p.ParentDealerID, p.UpdatedAt = role, parentDealerID, time.Now().UTC()
	s.profiles[id] = p
	return p, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := filter.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return all[start:end], nil
}

// UpsertStaff stores perms, replacing any record for the same dealer and
// staff member.
func (s *MemoryStore) UpsertStaff(_ context.Context, perms rbac.StaffPermissions) (rbac.StaffPermissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.StaffPermissions{}, s.Err
	}
	for i := range s.staff {
		if s.staff[i].DealerID == perms.DealerID && s.staff[i].StaffID == perms.StaffID {
			perms.ID = s.staff[i].ID
			s.staff[i] = perms
			return perms, nil
		}
	}
	if perms.ID == "" {
		perms.ID = uuid.NewString()
	}
	s.staff = append(s.staff, perms)
	return perms, nil
}

// ListStaff returns every record under dealerID, active or not.
func (s *MemoryStore) ListStaff(_ context.Context, dealerID string) ([]rbac.StaffPermissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []rbac.StaffPermissions
	for _, perms := range s.staff {
		if perms.DealerID == dealerID {
			out = append(out, perms)
		}
	}
	return out, nil
}

// GetStaff returns the record id under dealerID.
func (s *MemoryStore) GetStaff(_ context.Context, dealerID, id string) (rbac.StaffPermissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return rbac.StaffPermissions{}, s.Err
	}
	for _, perms := range s.staff {
		if perms.ID == id && perms.DealerID == dealerID {
			return perms, nil
		}
	}
	return rbac.StaffPermissions{}, ErrNotFound
}

// AddStaff stores an active record for perms and moves the profile into
// dealer_staff under perms.DealerID under one lock.
func (s *MemoryStore) AddStaff(_ context.Context, perms rbac.StaffPermissions) (rbac.StaffPermissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.StaffPermissions{}, s.Err
	}
	p, ok := s.profiles[perms.StaffID]
	if !ok {
		return rbac.StaffPermissions{}, ErrNotFound
	}

	perms.IsActive = true
	perms.PreviousRole = ""
	if p.Role != rbac.RoleDealerStaff {
		perms.PreviousRole = p.Role
	}
	existing := -1
	for i := range s.staff {
		if s.staff[i].DealerID == perms.DealerID && s.staff[i].StaffID == perms.StaffID {
			existing = i
			break
		}
	}
	if existing >= 0 {
		perms.ID = s.staff[existing].ID
		if perms.PreviousRole == "" {
			perms.PreviousRole = s.staff[existing].PreviousRole
		}
		s.staff[existing] = perms
	} else {
		perms.ID = uuid.NewString()
		s.staff = append(s.staff, perms)
	}

	dealerID := perms.DealerID
	p.Role, p.ParentDealerID, p.UpdatedAt = rbac.RoleDealerStaff, &dealerID, time.Now().UTC()
	s.profiles[p.ID] = p
	return perms, nil
}

// RemoveStaff deactivates record id under dealerID. A profile still
// working for that dealer gets its previous role back.
func (s *MemoryStore) RemoveStaff(_ context.Context, dealerID, id string) (rbac.StaffPermissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return rbac.StaffPermissions{}, s.Err
	}
	for i := range s.staff {
		perms := s.staff[i]
		if perms.ID != id || perms.DealerID != dealerID {
			continue
		}
		perms.IsActive = false
		s.staff[i] = perms

		p, ok := s.profiles[perms.StaffID]
		if ok && p.Role == rbac.RoleDealerStaff && p.ParentDealerID != nil && *p.ParentDealerID == dealerID {
			p.Role, p.ParentDealerID, p.UpdatedAt = RestoredRole(perms), nil, time.Now().UTC()
			s.profiles[p.ID] = p
		}
		return perms, nil
	}
	return rbac.StaffPermissions{}, ErrNotFound
}

// RestoredRole is the role a removed staff member returns to.
func RestoredRole(perms rbac.StaffPermissions) rbac.Role {
	if perms.PreviousRole == "" || perms.PreviousRole == rbac.RoleDealerStaff {
		return rbac.RoleRegistered
	}
	return perms.PreviousRole
}

// AdjustListingCount moves the denormalized listing counter by delta.
func (s *MemoryStore) AdjustListingCount(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.ListingCount += delta
	if p.ListingCount < 0 {
		p.ListingCount = 0
	}
	s.profiles[id] = p
	return nil
}
