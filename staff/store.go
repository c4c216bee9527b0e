package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/backend/profiles"
	"github.com/motorlot/marketplace/backend/rbac"
)

// Store persists dealer staff records. AddStaff and RemoveStaff change the
// staff record and the member's profile role together.
// profiles.MemoryStore satisfies it.
type Store interface {
	AddStaff(ctx context.Context, perms rbac.StaffPermissions) (rbac.StaffPermissions, error)
	RemoveStaff(ctx context.Context, dealerID, id string) (rbac.StaffPermissions, error)
	UpsertStaff(ctx context.Context, perms rbac.StaffPermissions) (rbac.StaffPermissions, error)
	ListStaff(ctx context.Context, dealerID string) ([]rbac.StaffPermissions, error)
	GetStaff(ctx context.Context, dealerID, id string) (rbac.StaffPermissions, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const staffColumns = `id, dealer_id, staff_id, role, can_post_listings, can_manage_leads,
                can_edit_dealer_settings, can_access_billing, is_active, COALESCE(previous_role, '')`

func (s *PGStore) UpsertStaff(ctx context.Context, p rbac.StaffPermissions) (rbac.StaffPermissions, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO dealer_staff (dealer_id, staff_id, role, can_post_listings, can_manage_leads,
                can_edit_dealer_settings, can_access_billing, is_active)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         ON CONFLICT (dealer_id, staff_id) DO UPDATE SET
                role = EXCLUDED.role,
                can_post_listings = EXCLUDED.can_post_listings,
                can_manage_leads = EXCLUDED.can_manage_leads,
                can_edit_dealer_settings = EXCLUDED.can_edit_dealer_settings,
                can_access_billing = EXCLUDED.can_access_billing,
                is_active = EXCLUDED.is_active,
                updated_at = NOW()
         RETURNING `+staffColumns,
		p.DealerID, p.StaffID, string(p.Role), p.CanPostListings, p.CanManageLeads,
		p.CanEditDealerSettings, p.CanAccessBilling, p.IsActive,
	)
	out, err := scanStaff(row)
	if err != nil {
		return rbac.StaffPermissions{}, fmt.Errorf("staff: upsert: %w", err)
	}
	return out, nil
}

// AddStaff upserts an active record and moves the profile into
// dealer_staff in one transaction. The profile row is locked so the
// remembered role is the one being replaced.
func (s *PGStore) AddStaff(ctx context.Context, p rbac.StaffPermissions) (rbac.StaffPermissions, error) {
	var out rbac.StaffPermissions
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT role FROM profiles WHERE id::text = $1 FOR UPDATE`, p.StaffID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return profiles.ErrNotFound
		}
		if err != nil {
			return err
		}
		previous := current
		if rbac.Role(current) == rbac.RoleDealerStaff {
			previous = ""
		}

		out, err = scanStaff(tx.QueryRow(ctx,
			`INSERT INTO dealer_staff (dealer_id, staff_id, role, can_post_listings, can_manage_leads,
                can_edit_dealer_settings, can_access_billing, is_active, previous_role)
         VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NULLIF($8, ''))
         ON CONFLICT (dealer_id, staff_id) DO UPDATE SET
                role = EXCLUDED.role,
                can_post_listings = EXCLUDED.can_post_listings,
                can_manage_leads = EXCLUDED.can_manage_leads,
                can_edit_dealer_settings = EXCLUDED.can_edit_dealer_settings,
                can_access_billing = EXCLUDED.can_access_billing,
                is_active = TRUE,
                previous_role = COALESCE(EXCLUDED.previous_role, dealer_staff.previous_role),
                updated_at = NOW()
         RETURNING `+staffColumns,
			p.DealerID, p.StaffID, string(p.Role), p.CanPostListings, p.CanManageLeads,
			p.CanEditDealerSettings, p.CanAccessBilling, previous,
		))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE profiles SET role = $2, parent_dealer_id = $3, updated_at = NOW() WHERE id::text = $1`,
			p.StaffID, string(rbac.RoleDealerStaff), p.DealerID)
		return err
	})
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return rbac.StaffPermissions{}, err
		}
		return rbac.StaffPermissions{}, fmt.Errorf("staff: add: %w", err)
	}
	return out, nil
}

// RemoveStaff deactivates the record and restores the member's previous
// role in one transaction. Profiles no longer working for the dealer keep
// their current role.
func (s *PGStore) RemoveStaff(ctx context.Context, dealerID, id string) (rbac.StaffPermissions, error) {
	var out rbac.StaffPermissions
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		out, err = scanStaff(tx.QueryRow(ctx,
			`UPDATE dealer_staff SET is_active = FALSE, updated_at = NOW()
         WHERE id::text = $1 AND dealer_id::text = $2
         RETURNING `+staffColumns, id, dealerID))
		if errors.Is(err, pgx.ErrNoRows) {
			return profiles.ErrNotFound
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE profiles SET role = $2, parent_dealer_id = NULL, updated_at = NOW()
         WHERE id::text = $1 AND role = $3 AND parent_dealer_id::text = $4`,
			out.StaffID, string(profiles.RestoredRole(out)), string(rbac.RoleDealerStaff), dealerID)
		return err
	})
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return rbac.StaffPermissions{}, err
		}
		return rbac.StaffPermissions{}, fmt.Errorf("staff: remove: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListStaff(ctx context.Context, dealerID string) ([]rbac.StaffPermissions, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+staffColumns+` FROM dealer_staff WHERE dealer_id::text = $1 ORDER BY created_at`, dealerID)
	if err != nil {
		return nil, fmt.Errorf("staff: list: %w", err)
	}
	defer rows.Close()

	var out []rbac.StaffPermissions
	for rows.Next() {
		p, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("staff: list scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) GetStaff(ctx context.Context, dealerID, id string) (rbac.StaffPermissions, error) {
	p, err := scanStaff(s.pool.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM dealer_staff WHERE id::text = $1 AND dealer_id::text = $2`, id, dealerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.StaffPermissions{}, profiles.ErrNotFound
	}
	if err != nil {
		return rbac.StaffPermissions{}, fmt.Errorf("staff: get: %w", err)
	}
	return p, nil
}

func scanStaff(row pgx.Row) (rbac.StaffPermissions, error) {
	var (
		p              rbac.StaffPermissions
		role, previous string
	)
	err := row.Scan(&p.ID, &p.DealerID, &p.StaffID, &role, &p.CanPostListings, &p.CanManageLeads,
		&p.CanEditDealerSettings, &p.CanAccessBilling, &p.IsActive, &previous)
	p.Role = rbac.StaffRole(role)
	p.PreviousRole = rbac.Role(previous)
	return p, err
}
