package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	stations "mobbi-manager/internal/stations/domain"
)

const defaultPartnersTable = "partners"

// emptyAllocation matches every stored shape that means "nothing allocated".
const emptyAllocation = `(allocated_stations IS NULL
	OR allocated_stations = 'null'::jsonb
	OR allocated_stations = '[]'::jsonb
	OR allocated_stations = '""'::jsonb
	OR allocated_stations = '"[]"'::jsonb)`

// PartnerRepository is a Postgres implementation for partners.
type PartnerRepository struct {
	db         DBTX
	table      string
	areasTable string
}

// PartnerOption configures the repository.
type PartnerOption func(*PartnerRepository)

// WithPartnerTable overrides the default table name.
func WithPartnerTable(table string) PartnerOption {
	return func(repo *PartnerRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithPartnerAreasTable overrides the areas table used by allocation commits.
func WithPartnerAreasTable(table string) PartnerOption {
	return func(repo *PartnerRepository) {
		if table != "" {
			repo.areasTable = table
		}
	}
}

// NewPartnerRepository constructs a repository.
func NewPartnerRepository(db DBTX, opts ...PartnerOption) *PartnerRepository {
	repo := &PartnerRepository{db: db, table: defaultPartnersTable, areasTable: defaultAreasTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a partner by id. A stored allocation that cannot be decoded is
// reported through Partner.AllocationErr.
func (r *PartnerRepository) Get(ctx context.Context, id string) (*stations.Partner, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("partner repo: nil db")
	}
	if id == "" {
		return nil, stations.ErrEmptyPartnerID
	}

	query := fmt.Sprintf(`
SELECT id, name, area_id, status, requested_stations, allocated_stations, allocated_at, deleting_at, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	partner, err := scanPartner(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return partner, nil
}

// ListByArea loads partners of an area.
func (r *PartnerRepository) ListByArea(ctx context.Context, areaID string) ([]stations.Partner, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("partner repo: nil db")
	}
	if areaID == "" {
		return nil, stations.ErrEmptyAreaID
	}

	query := fmt.Sprintf(`
SELECT id, name, area_id, status, requested_stations, allocated_stations, allocated_at, deleting_at, created_at, updated_at
FROM %s
WHERE area_id = $1
ORDER BY name ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, areaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Partner
	for rows.Next() {
		partner, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *partner)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AllocationsByArea loads the committed allocation of every partner in an area.
func (r *PartnerRepository) AllocationsByArea(ctx context.Context, areaID string) ([]stations.AllocationRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("partner repo: nil db")
	}
	if areaID == "" {
		return nil, stations.ErrEmptyAreaID
	}

	query := fmt.Sprintf(`
SELECT id, allocated_stations
FROM %s
WHERE area_id = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, areaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.AllocationRecord
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		grants, decodeErr := stations.DecodeGrants(raw)
		result = append(result, stations.AllocationRecord{PartnerID: id, Grants: grants, Err: decodeErr})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts partner details. The allocation columns are never written here.
func (r *PartnerRepository) Save(ctx context.Context, partner *stations.Partner) error {
	if r == nil || r.db == nil {
		return errors.New("partner repo: nil db")
	}
	if partner == nil {
		return stations.ErrEmptyPartnerID
	}
	if partner.Status == "" {
		partner.Status = stations.StatusContact
	}
	if err := partner.Validate(); err != nil {
		return err
	}
	requested, err := stations.EncodeRequests(partner.Requested)
	if err != nil {
		return err
	}

	// Unreadable stored requests are kept as they are.
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	id,
	name,
	area_id,
	status,
	requested_stations
) VALUES (
	$1, $2, $3, $4, $5::jsonb
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	area_id = EXCLUDED.area_id,
	status = EXCLUDED.status,
	requested_stations = CASE WHEN $6 THEN %[1]s.requested_stations ELSE EXCLUDED.requested_stations END,
	updated_at = NOW()
RETURNING created_at, updated_at`, r.table)

	err = r.db.QueryRowContext(
		ctx,
		query,
		partner.ID,
		partner.Name,
		nullString(partner.AreaID),
		string(partner.Status),
		string(requested),
		partner.RequestsErr != nil,
	).Scan(&partner.CreatedAt, &partner.UpdatedAt)
	if err != nil {
		return err
	}
	partner.CreatedAt = partner.CreatedAt.UTC()
	partner.UpdatedAt = partner.UpdatedAt.UTC()
	return nil
}

// CommitAllocation advances the area version and writes the partner's grants
// and status in one transaction. Either guard failing yields
// ErrAllocationConflict and nothing is written.
func (r *PartnerRepository) CommitAllocation(ctx context.Context, commit stations.AllocationCommit) error {
	if r == nil || r.db == nil {
		return errors.New("partner repo: nil db")
	}
	if commit.PartnerID == "" {
		return stations.ErrEmptyPartnerID
	}
	if commit.AreaID == "" {
		return stations.ErrEmptyAreaID
	}
	encoded, err := stations.EncodeGrants(commit.Grants)
	if err != nil {
		return err
	}

	areaQuery := fmt.Sprintf(`
UPDATE %s
SET allocation_version = allocation_version + 1,
	updated_at = NOW()
WHERE id = $1 AND allocation_version = $2`, r.areasTable)

	partnerQuery := fmt.Sprintf(`
UPDATE %s
SET allocated_stations = $1::jsonb,
	status = $2,
	allocated_at = $3,
	updated_at = NOW()
WHERE id = $4 AND area_id = $5 AND deleting_at IS NULL AND %s`, r.table, emptyAllocation)

	return inTx(ctx, r.db, func(db DBTX) error {
		res, err := db.ExecContext(ctx, areaQuery, commit.AreaID, commit.ExpectedAreaVersion)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, stations.ErrAllocationConflict); err != nil {
			return err
		}

		res, err = db.ExecContext(
			ctx,
			partnerQuery,
			string(encoded),
			string(commit.Status),
			commit.AllocatedAt,
			commit.PartnerID,
			commit.AreaID,
		)
		if err != nil {
			return err
		}
		return expectOneRow(res, stations.ErrAllocationConflict)
	})
}

// MarkDeleting flags a partner for deletion. With expectUnallocated the
// update only applies while the stored allocation is empty.
func (r *PartnerRepository) MarkDeleting(ctx context.Context, id string, expectUnallocated bool) error {
	if r == nil || r.db == nil {
		return errors.New("partner repo: nil db")
	}
	if id == "" {
		return stations.ErrEmptyPartnerID
	}

	guard := "TRUE"
	if expectUnallocated {
		guard = emptyAllocation
	}
	query := fmt.Sprintf(`
UPDATE %s
SET deleting_at = COALESCE(deleting_at, NOW()),
	updated_at = NOW()
WHERE id = $1 AND %s`, r.table, guard)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.table), id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return stations.ErrPartnerNotFound
	}
	return stations.ErrAllocationConflict
}

// Delete removes a partner.
func (r *PartnerRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("partner repo: nil db")
	}
	if id == "" {
		return stations.ErrEmptyPartnerID
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return err
	}
	return expectOneRow(res, stations.ErrPartnerNotFound)
}

func expectOneRow(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return none
	}
	return nil
}

func scanPartner(row rowScanner) (*stations.Partner, error) {
	var (
		partner     stations.Partner
		areaID      sql.NullString
		status      string
		requested   []byte
		allocated   []byte
		allocatedAt sql.NullTime
		deletingAt  sql.NullTime
	)
	if err := row.Scan(
		&partner.ID,
		&partner.Name,
		&areaID,
		&status,
		&requested,
		&allocated,
		&allocatedAt,
		&deletingAt,
		&partner.CreatedAt,
		&partner.UpdatedAt,
	); err != nil {
		return nil, err
	}
	partner.AreaID = areaID.String
	partner.Status = stations.PartnerStatus(status)
	if allocatedAt.Valid {
		partner.AllocatedAt = allocatedAt.Time.UTC()
	}
	if deletingAt.Valid {
		partner.DeletingAt = deletingAt.Time.UTC()
	}
	partner.CreatedAt = partner.CreatedAt.UTC()
	partner.UpdatedAt = partner.UpdatedAt.UTC()

	partner.Requested, partner.RequestsErr = stations.DecodeRequests(requested)
	partner.Allocated, partner.AllocationErr = stations.DecodeGrants(allocated)
	return &partner, nil
}
