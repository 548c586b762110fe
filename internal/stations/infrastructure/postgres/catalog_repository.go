package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	stations "mobbi-manager/internal/stations/domain"
)

// CatalogRepository resolves station models and colors.
type CatalogRepository struct {
	db          DBTX
	modelsTable string
	colorsTable string
}

// CatalogOption configures the repository.
type CatalogOption func(*CatalogRepository)

// WithCatalogTables overrides the default table names.
func WithCatalogTables(models, colors string) CatalogOption {
	return func(repo *CatalogRepository) {
		if models != "" {
			repo.modelsTable = models
		}
		if colors != "" {
			repo.colorsTable = colors
		}
	}
}

// NewCatalogRepository constructs a repository.
func NewCatalogRepository(db DBTX, opts ...CatalogOption) *CatalogRepository {
	repo := &CatalogRepository{db: db, modelsTable: "station_models", colorsTable: "station_colors"}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// GetModel loads an active station model.
func (r *CatalogRepository) GetModel(ctx context.Context, id string) (*stations.StationModel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	if id == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT id, name, active
FROM %s
WHERE id = $1 AND active
LIMIT 1`, r.modelsTable)

	var model stations.StationModel
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&model.ID, &model.Name, &model.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &model, nil
}

// GetColor loads a station color.
func (r *CatalogRepository) GetColor(ctx context.Context, id string) (*stations.StationColor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	if id == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT id, model_id, name
FROM %s
WHERE id = $1
LIMIT 1`, r.colorsTable)

	var (
		color   stations.StationColor
		modelID sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&color.ID, &modelID, &color.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	color.ModelID = modelID.String
	return &color, nil
}
