package dealers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("dealers: not found")
	ErrExists   = errors.New("dealers: dealer profile already exists")
)

// Store persists dealer business profiles.
type Store interface {
	Exists(ctx context.Context, profileID string) (bool, error)
	Get(ctx context.Context, profileID string) (DealerProfile, error)
	Create(ctx context.Context, d DealerProfile) (DealerProfile, error)
	Update(ctx context.Context, profileID string, s Settings) (DealerProfile, error)
	List(ctx context.Context, limit, offset int) ([]DealerProfile, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const dealerColumns = `profile_id, business_name, location, latitude, longitude, description, created_at, updated_at`

func (s *PGStore) Exists(ctx context.Context, profileID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dealer_profiles WHERE profile_id::text = $1)`, profileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dealers: exists: %w", err)
	}
	return exists, nil
}

func (s *PGStore) Get(ctx context.Context, profileID string) (DealerProfile, error) {
	d, err := scanDealer(s.pool.QueryRow(ctx,
		`SELECT `+dealerColumns+` FROM dealer_profiles WHERE profile_id::text = $1`, profileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return DealerProfile{}, ErrNotFound
	}
	if err != nil {
		return DealerProfile{}, fmt.Errorf("dealers: get: %w", err)
	}
	return d, nil
}

func (s *PGStore) Create(ctx context.Context, d DealerProfile) (DealerProfile, error) {
	created, err := scanDealer(s.pool.QueryRow(ctx,
		`INSERT INTO dealer_profiles (profile_id, business_name, location, latitude, longitude, description)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+dealerColumns,
		d.ProfileID, d.BusinessName, d.Location, d.Latitude, d.Longitude, d.Description,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return DealerProfile{}, ErrExists
		}
		return DealerProfile{}, fmt.Errorf("dealers: create: %w", err)
	}
	return created, nil
}

func (s *PGStore) Update(ctx context.Context, profileID string, st Settings) (DealerProfile, error) {
	d, err := scanDealer(s.pool.QueryRow(ctx,
		`UPDATE dealer_profiles
         SET business_name = $2, location = $3, latitude = $4, longitude = $5, description = $6, updated_at = NOW()
         WHERE profile_id::text = $1
         RETURNING `+dealerColumns,
		profileID, st.BusinessName, st.Location, st.Latitude, st.Longitude, st.Description,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return DealerProfile{}, ErrNotFound
	}
	if err != nil {
		return DealerProfile{}, fmt.Errorf("dealers: update: %w", err)
	}
	return d, nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]DealerProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dealerColumns+` FROM dealer_profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dealers: list: %w", err)
	}
	defer rows.Close()

	var out []DealerProfile
	for rows.Next() {
		d, err := scanDealer(rows)
		if err != nil {
			return nil, fmt.Errorf("dealers: list scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDealer(row pgx.Row) (DealerProfile, error) {
	var d DealerProfile
	err := row.Scan(&d.ProfileID, &d.BusinessName, &d.Location, &d.Latitude, &d.Longitude,
		&d.Description, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	dealers map[string]DealerProfile

	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dealers: map[string]DealerProfile{}}
}

func (s *MemoryStore) Exists(_ context.Context, profileID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.dealers[profileID]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, profileID string) (DealerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return DealerProfile{}, s.Err
	}
	d, ok := s.dealers[profileID]
	if !ok {
		return DealerProfile{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Create(_ context.Context, d DealerProfile) (DealerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return DealerProfile{}, s.Err
	}
	if _, ok := s.dealers[d.ProfileID]; ok {
		return DealerProfile{}, ErrExists
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	s.dealers[d.ProfileID] = d
	return d, nil
}

func (s *MemoryStore) Update(_ context.Context, profileID string, st Settings) (DealerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dealers[profileID]
	if !ok {
		return DealerProfile{}, ErrNotFound
	}
	d.BusinessName, d.Location, d.Latitude, d.Longitude, d.Description =
		st.BusinessName, st.Location, st.Latitude, st.Longitude, st.Description
	d.UpdatedAt = time.Now().UTC()
	s.dealers[profileID] = d
	return d, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]DealerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]DealerProfile, 0, len(s.dealers))
	for _, d := range s.dealers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
