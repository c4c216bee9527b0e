package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/backend/rbac"
)

var (
	// ErrNotFound signals that the profile (or staff record) does not exist.
	ErrNotFound = errors.New("profiles: not found")
	// ErrUnknownRole signals a role column outside the closed role set.
	ErrUnknownRole = errors.New("profiles: unknown role")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("profiles: email already exists")
)

// Store is the read side every access check relies on.
type Store interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	GetRole(ctx context.Context, id string) (rbac.Role, error)
	// GetActiveStaffPermissions returns the staff record with is_active=true
	// for the profile, or ErrNotFound.
	GetActiveStaffPermissions(ctx context.Context, id string) (*rbac.StaffPermissions, error)
}

// CreateParams contains write parameters for registering a profile.
type CreateParams struct {
	Name         string
	Email        string
	PasswordHash string
}

// ListFilter narrows admin profile listings.
type ListFilter struct {
	Role   rbac.Role
	Limit  int
	Offset int
}

// Repository is the full profile data access surface.
type Repository interface {
	Store
	Create(ctx context.Context, params CreateParams) (Profile, error)
	FindCredentials(ctx context.Context, email string) (Credentials, error)
	FindByEmail(ctx context.Context, email string) (Profile, error)
	UpdateContact(ctx context.Context, id, name, phone string) (Profile, error)
	SetRole(ctx context.Context, id string, role rbac.Role, parentDealerID *string) (Profile, error)
	List(ctx context.Context, filter ListFilter) ([]Profile, error)
}

// PGStore implements Repository backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed profile store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const profileColumns = `id, name, email, phone, role, reputation_score, is_verified, listing_count, parent_dealer_id, created_at, updated_at`

func (s *PGStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Profile{}, ErrNotFound
	}
	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return Profile{}, wrapNotFound("get profile", err)
	}
	return p, nil
}

// GetRole reads only the role column.
func (s *PGStore) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	var raw string
	if err := s.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&raw); err != nil {
		return "", wrapNotFound("get role", err)
	}
	role, ok := rbac.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

func (s *PGStore) GetActiveStaffPermissions(ctx context.Context, id string) (*rbac.StaffPermissions, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, dealer_id, staff_id, role, can_post_listings, can_manage_leads,
                can_edit_dealer_settings, can_access_billing, is_active
         FROM dealer_staff
         WHERE staff_id = $1 AND is_active = TRUE
         ORDER BY updated_at DESC
         LIMIT 1`, id)

	var (
		perms rbac.StaffPermissions
		role  string
	)
	if err := row.Scan(&perms.ID, &perms.DealerID, &perms.StaffID, &role,
		&perms.CanPostListings, &perms.CanManageLeads, &perms.CanEditDealerSettings,
		&perms.CanAccessBilling, &perms.IsActive); err != nil {
		return nil, wrapNotFound("get staff permissions", err)
	}
	perms.Role = rbac.StaffRole(role)
	return &perms, nil
}

func (s *PGStore) Create(ctx context.Context, params CreateParams) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, name, email, password_hash, role)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING `+profileColumns,
		uuid.NewString(), params.Name, strings.ToLower(params.Email), params.PasswordHash, string(rbac.RoleRegistered),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrDuplicateEmail
		}
		return Profile{}, fmt.Errorf("profiles: create: %w", err)
	}
	return p, nil
}

func (s *PGStore) FindCredentials(ctx context.Context, email string) (Credentials, error) {
	var c Credentials
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM profiles WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&c.ProfileID, &c.Email, &c.PasswordHash)
	if err != nil {
		return Credentials{}, wrapNotFound("find credentials", err)
	}
	return c, nil
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err != nil {
		return Profile{}, wrapNotFound("find by email", err)
	}
	return p, nil
}

func (s *PGStore) UpdateContact(ctx context.Context, id, name, phone string) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`UPDATE profiles SET name = $2, phone = $3, updated_at = NOW()
         WHERE id = $1
         RETURNING `+profileColumns,
		id, name, phone,
	))
	if err != nil {
		return Profile{}, wrapNotFound("update contact", err)
	}
	return p, nil
}

func (s *PGStore) SetRole(ctx context.Context, id string, role rbac.Role, parentDealerID *string) (Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`UPDATE profiles SET role = $2, parent_dealer_id = $3, updated_at = NOW()
         WHERE id = $1
         RETURNING `+profileColumns,
		id, string(role), parentDealerID,
	))
	if err != nil {
		return Profile{}, wrapNotFound("set role", err)
	}
	return p, nil
}

func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += fmt.Sprintf(` WHERE role = $%d`, len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("profiles: list scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p    Profile
		role string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &role, &p.ReputationScore,
		&p.IsVerified, &p.ListingCount, &p.ParentDealerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	p.Role = rbac.Role(role)
	return p, nil
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("profiles: %s: %w", op, err)
}
