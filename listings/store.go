package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists listings and keeps the owner's listing_count current.
type Repository interface {
	// Create inserts l unless the owner already holds limit listings.
	Create(ctx context.Context, l Listing, limit int) (Listing, error)
	Get(ctx context.Context, id string) (Listing, error)
	Update(ctx context.Context, l Listing) (Listing, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, f Filter) ([]Listing, error)
}

// PGStore implements Repository backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const listingColumns = `id, owner_id, created_by, make, model, year, mileage_km, price_cents, currency,
                location, description, status, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, l Listing, limit int) (Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listings: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT listing_count FROM profiles WHERE id = $1 FOR UPDATE`, l.OwnerID,
	).Scan(&count); err != nil {
		return Listing{}, fmt.Errorf("listings: lock owner: %w", err)
	}
	if count >= limit {
		return Listing{}, ErrLimitReached
	}

	created, err := scanListing(tx.QueryRow(ctx,
		`INSERT INTO listings (id, owner_id, created_by, make, model, year, mileage_km, price_cents, currency,
                location, description, status)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
         RETURNING `+listingColumns,
		uuid.NewString(), l.OwnerID, l.CreatedBy, l.Make, l.Model, l.Year, l.Mileage, l.PriceCents,
		l.Currency, l.Location, l.Description, string(l.Status),
	))
	if err != nil {
		return Listing{}, fmt.Errorf("listings: insert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET listing_count = listing_count + 1, updated_at = NOW() WHERE id = $1`, l.OwnerID,
	); err != nil {
		return Listing{}, fmt.Errorf("listings: bump counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listings: commit: %w", err)
	}
	return created, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Listing{}, ErrNotFound
	}
	l, err := scanListing(s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("listings: get: %w", err)
	}
	return l, nil
}

func (s *PGStore) Update(ctx context.Context, l Listing) (Listing, error) {
	updated, err := scanListing(s.pool.QueryRow(ctx,
		`UPDATE listings
         SET make = $2, model = $3, year = $4, mileage_km = $5, price_cents = $6, currency = $7,
             location = $8, description = $9, status = $10, updated_at = NOW()
         WHERE id = $1
         RETURNING `+listingColumns,
		l.ID, l.Make, l.Model, l.Year, l.Mileage, l.PriceCents, l.Currency, l.Location, l.Description, string(l.Status),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrNotFound
	}
	if err != nil {
		return Listing{}, fmt.Errorf("listings: update: %w", err)
	}
	return updated, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("listings: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID string
	if err := tx.QueryRow(ctx, `DELETE FROM listings WHERE id = $1 RETURNING owner_id`, id).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("listings: delete: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET listing_count = GREATEST(listing_count - 1, 0), updated_at = NOW() WHERE id = $1`, ownerID,
	); err != nil {
		return fmt.Errorf("listings: drop counter: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Search(ctx context.Context, f Filter) ([]Listing, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Make != "" {
		add("make ILIKE $%d", f.Make)
	}
	if f.Model != "" {
		add("model ILIKE $%d", f.Model)
	}
	if f.YearMin > 0 {
		add("year >= $%d", f.YearMin)
	}
	if f.YearMax > 0 {
		add("year <= $%d", f.YearMax)
	}
	if f.PriceMin > 0 {
		add("price_cents >= $%d", f.PriceMin)
	}
	if f.PriceMax > 0 {
		add("price_cents <= $%d", f.PriceMax)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.OwnerID != "" {
		add("owner_id::text = $%d", f.OwnerID)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listings: search: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("listings: search scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (Listing, error) {
	var (
		l      Listing
		status string
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.CreatedBy, &l.Make, &l.Model, &l.Year, &l.Mileage, &l.PriceCents,
		&l.Currency, &l.Location, &l.Description, &status, &l.CreatedAt, &l.UpdatedAt)
	l.Status = Status(status)
	return l, err
}
