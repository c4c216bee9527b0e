package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists leads.
type Store interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	Get(ctx context.Context, id string) (Lead, error)
	SetStatus(ctx context.Context, id string, status Status) (Lead, error)
	List(ctx context.Context, f Filter) ([]Lead, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const leadColumns = `id, listing_id, owner_id, sender_id, message, phone, status, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, l Lead) (Lead, error) {
	created, err := scanLead(s.pool.QueryRow(ctx,
		`INSERT INTO leads (id, listing_id, owner_id, sender_id, message, phone, status)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING `+leadColumns,
		uuid.NewString(), l.ListingID, l.OwnerID, l.SenderID, l.Message, l.Phone, string(StatusNew),
	))
	if err != nil {
		return Lead{}, fmt.Errorf("leads: insert: %w", err)
	}
	return created, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Lead{}, ErrNotFound
	}
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

func (s *PGStore) SetStatus(ctx context.Context, id string, status Status) (Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Lead{}, ErrNotFound
	}
	l, err := scanLead(s.pool.QueryRow(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+leadColumns,
		id, string(status),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Lead, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id::text = $%d", f.OwnerID)
	}
	if f.SenderID != "" {
		add("sender_id::text = $%d", f.SenderID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (Lead, error) {
	var (
		l      Lead
		status string
	)
	err := row.Scan(&l.ID, &l.ListingID, &l.OwnerID, &l.SenderID, &l.Message, &l.Phone, &status,
		&l.CreatedAt, &l.UpdatedAt)
	l.Status = Status(status)
	return l, err
}
