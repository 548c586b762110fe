package postgres

import (
	"context"
	"errors"
	"fmt"

	stations "mobbi-manager/internal/stations/domain"
)

const defaultContactsTable = "partner_contacts"

// ContactRepository is a Postgres implementation for partner contacts.
type ContactRepository struct {
	db    DBTX
	table string
}

// ContactOption configures the repository.
type ContactOption func(*ContactRepository)

// WithContactTable overrides the default table name.
func WithContactTable(table string) ContactOption {
	return func(repo *ContactRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewContactRepository constructs a repository.
func NewContactRepository(db DBTX, opts ...ContactOption) *ContactRepository {
	repo := &ContactRepository{db: db, table: defaultContactsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ListByPartner loads contacts for a partner.
func (r *ContactRepository) ListByPartner(ctx context.Context, partnerID string) ([]stations.Contact, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contact repo: nil db")
	}
	if partnerID == "" {
		return nil, stations.ErrEmptyPartnerID
	}

	query := fmt.Sprintf(`
SELECT id, partner_id, name, email, phone, role, created_at
FROM %s
WHERE partner_id = $1
ORDER BY created_at ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Contact
	for rows.Next() {
		var contact stations.Contact
		if err := rows.Scan(
			&contact.ID,
			&contact.PartnerID,
			&contact.Name,
			&contact.Email,
			&contact.Phone,
			&contact.Role,
			&contact.CreatedAt,
		); err != nil {
			return nil, err
		}
		contact.CreatedAt = contact.CreatedAt.UTC()
		result = append(result, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a contact.
func (r *ContactRepository) Save(ctx context.Context, contact *stations.Contact) error {
	if r == nil || r.db == nil {
		return errors.New("contact repo: nil db")
	}
	if contact == nil {
		return errors.New("contact repo: nil contact")
	}
	if err := contact.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	partner_id,
	name,
	email,
	phone,
	role
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	role = EXCLUDED.role
RETURNING created_at`, r.table)

	if err := r.db.QueryRowContext(
		ctx,
		query,
		contact.ID,
		contact.PartnerID,
		contact.Name,
		contact.Email,
		contact.Phone,
		contact.Role,
	).Scan(&contact.CreatedAt); err != nil {
		return err
	}
	contact.CreatedAt = contact.CreatedAt.UTC()
	return nil
}

// DeleteByPartner removes every contact of a partner and reports how many
// rows were deleted.
func (r *ContactRepository) DeleteByPartner(ctx context.Context, partnerID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("contact repo: nil db")
	}
	if partnerID == "" {
		return 0, stations.ErrEmptyPartnerID
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE partner_id = $1`, r.table), partnerID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
