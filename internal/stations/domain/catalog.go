package stations

import "context"

// StationModel is a kiosk model offered to partners.
type StationModel struct {
	ID     string
	Name   string
	Active bool
}

// StationColor is a finish available for a model. An empty ModelID means
// the color is offered for every model.
type StationColor struct {
	ID      string
	ModelID string
	Name    string
}

// Catalog resolves model and color references.
type Catalog interface {
	GetModel(ctx context.Context, id string) (*StationModel, error)
	GetColor(ctx context.Context, id string) (*StationColor, error)
}
