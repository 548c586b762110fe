package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	stations "mobbi-manager/internal/stations/domain"
)

const defaultAreasTable = "areas"

// AreaRepository is a Postgres implementation for areas.
type AreaRepository struct {
	db    DBTX
	table string
}

// AreaOption configures the repository.
type AreaOption func(*AreaRepository)

// WithAreaTable overrides the default table name.
func WithAreaTable(table string) AreaOption {
	return func(repo *AreaRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAreaRepository constructs a repository.
func NewAreaRepository(db DBTX, opts ...AreaOption) *AreaRepository {
	repo := &AreaRepository{db: db, table: defaultAreasTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads an area by id.
func (r *AreaRepository) Get(ctx context.Context, id string) (*stations.Area, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("area repo: nil db")
	}
	if id == "" {
		return nil, stations.ErrEmptyAreaID
	}

	query := fmt.Sprintf(`
SELECT id, name, region, station_budget, allocation_version, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	area, err := scanArea(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return area, nil
}

// List loads all areas ordered by name.
func (r *AreaRepository) List(ctx context.Context) ([]stations.Area, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("area repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, region, station_budget, allocation_version, created_at, updated_at
FROM %s
ORDER BY name ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Area
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *area)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts an area. Updates only apply while the stored allocation
// version equals area.AllocationVersion; the version then advances.
func (r *AreaRepository) Save(ctx context.Context, area *stations.Area) error {
	if r == nil || r.db == nil {
		return errors.New("area repo: nil db")
	}
	if area == nil {
		return stations.ErrEmptyAreaID
	}
	if err := area.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	id,
	name,
	region,
	station_budget,
	allocation_version
) VALUES (
	$1, $2, $3, $4, 1
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	region = EXCLUDED.region,
	station_budget = EXCLUDED.station_budget,
	allocation_version = %[1]s.allocation_version + 1,
	updated_at = NOW()
WHERE %[1]s.allocation_version = $5
RETURNING allocation_version, created_at, updated_at`, r.table)

	err := r.db.QueryRowContext(
		ctx,
		query,
		area.ID,
		area.Name,
		area.Region,
		area.StationBudget,
		area.AllocationVersion,
	).Scan(&area.AllocationVersion, &area.CreatedAt, &area.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return stations.ErrAllocationConflict
		}
		return err
	}
	area.CreatedAt = area.CreatedAt.UTC()
	area.UpdatedAt = area.UpdatedAt.UTC()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArea(row rowScanner) (*stations.Area, error) {
	var area stations.Area
	if err := row.Scan(
		&area.ID,
		&area.Name,
		&area.Region,
		&area.StationBudget,
		&area.AllocationVersion,
		&area.CreatedAt,
		&area.UpdatedAt,
	); err != nil {
		return nil, err
	}
	area.CreatedAt = area.CreatedAt.UTC()
	area.UpdatedAt = area.UpdatedAt.UTC()
	return &area, nil
}
