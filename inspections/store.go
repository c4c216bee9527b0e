package inspections

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists inspection reports.
type Store interface {
	Create(ctx context.Context, in Inspection) (Inspection, error)
	ListByListing(ctx context.Context, listingID string) ([]Inspection, error)
	ListByInspector(ctx context.Context, inspectorID string) ([]Inspection, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const inspectionColumns = `id, listing_id, inspector_id, grade, odometer_km, checklist, summary, inspected_at, created_at`

func (s *PGStore) Create(ctx context.Context, in Inspection) (Inspection, error) {
	checklist, err := encodeChecklist(in.Checklist)
	if err != nil {
		return Inspection{}, fmt.Errorf("inspections: encode checklist: %w", err)
	}
	created, err := scanInspection(s.pool.QueryRow(ctx,
		`INSERT INTO inspections (id, listing_id, inspector_id, grade, odometer_km, checklist, summary, inspected_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+inspectionColumns,
		uuid.NewString(), in.ListingID, in.InspectorID, string(in.Grade), in.OdometerKM, checklist,
		in.Summary, in.InspectedAt,
	))
	if err != nil {
		return Inspection{}, fmt.Errorf("inspections: insert: %w", err)
	}
	return created, nil
}

func (s *PGStore) ListByListing(ctx context.Context, listingID string) ([]Inspection, error) {
	return s.list(ctx, `listing_id::text = $1`, listingID)
}

func (s *PGStore) ListByInspector(ctx context.Context, inspectorID string) ([]Inspection, error) {
	return s.list(ctx, `inspector_id::text = $1`, inspectorID)
}

func (s *PGStore) list(ctx context.Context, where string, arg string) ([]Inspection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE `+where+` ORDER BY inspected_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("inspections: list: %w", err)
	}
	defer rows.Close()

	var out []Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("inspections: scan: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInspection(row pgx.Row) (Inspection, error) {
	var (
		in           Inspection
		grade        string
		odometer     sql.NullInt32
		checklistRaw []byte
	)
	if err := row.Scan(&in.ID, &in.ListingID, &in.InspectorID, &grade, &odometer, &checklistRaw,
		&in.Summary, &in.InspectedAt, &in.CreatedAt); err != nil {
		return in, err
	}
	in.Grade = Grade(grade)
	if odometer.Valid {
		val := int(odometer.Int32)
		in.OdometerKM = &val
	}
	if len(checklistRaw) > 0 {
		var items []ChecklistItem
		if err := json.Unmarshal(checklistRaw, &items); err != nil {
			return in, err
		}
		in.Checklist = normalizeChecklist(items)
	}
	in.InspectedAt = in.InspectedAt.UTC()
	return in, nil
}
