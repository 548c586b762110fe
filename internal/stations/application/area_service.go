package application

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	stations "mobbi-manager/internal/stations/domain"
)

// AreaInput describes an area to create.
type AreaInput struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Region        string `json:"region"`
	StationBudget int    `json:"station_budget"`
}

// AreaUpdate holds optional area edits.
type AreaUpdate struct {
	Name          *string `json:"name"`
	Region        *string `json:"region"`
	StationBudget *int    `json:"station_budget"`
}

// AreaService provides area commands.
type AreaService struct {
	areas      stations.AreaRepository
	partners   stations.PartnerRepository
	logger     *zap.Logger
	maxRetries int
}

// NewAreaService constructs an area service.
func NewAreaService(areas stations.AreaRepository, partners stations.PartnerRepository, logger *zap.Logger) (*AreaService, error) {
	if areas == nil {
		return nil, errors.New("area service: nil area repository")
	}
	if partners == nil {
		return nil, errors.New("area service: nil partner repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AreaService{areas: areas, partners: partners, logger: logger, maxRetries: defaultAllocationRetries}, nil
}

// CreateArea validates and stores a new area.
func (s *AreaService) CreateArea(ctx context.Context, input AreaInput) (*stations.Area, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = "area-" + uuid.NewString()
	}
	existing, err := s.areas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, stations.ErrAreaExists
	}
	area := &stations.Area{
		ID:            id,
		Name:          strings.TrimSpace(input.Name),
		Region:        strings.TrimSpace(input.Region),
		StationBudget: input.StationBudget,
	}
	if err := s.areas.Save(ctx, area); err != nil {
		return nil, err
	}
	s.logger.Info("area created", zap.String("area_id", area.ID), zap.Int("station_budget", area.StationBudget))
	return area, nil
}

// UpdateArea applies edits. A budget below the stations already allocated in
// the area is rejected.
func (s *AreaService) UpdateArea(ctx context.Context, id string, update AreaUpdate) (*stations.Area, error) {
	if id == "" {
		return nil, stations.ErrEmptyAreaID
	}
	for attempt := 1; ; attempt++ {
		area, err := s.updateArea(ctx, id, update)
		if !errors.Is(err, stations.ErrAllocationConflict) || attempt >= s.maxRetries {
			return area, err
		}
	}
}

func (s *AreaService) updateArea(ctx context.Context, id string, update AreaUpdate) (*stations.Area, error) {
	area, err := s.areas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if area == nil {
		return nil, stations.ErrAreaNotFound
	}
	if update.Name != nil {
		area.Name = strings.TrimSpace(*update.Name)
	}
	if update.Region != nil {
		area.Region = strings.TrimSpace(*update.Region)
	}
	if update.StationBudget != nil {
		records, err := s.partners.AllocationsByArea(ctx, id)
		if err != nil {
			return nil, err
		}
		summary := stations.ComputeBudget(*area, records, "")
		if *update.StationBudget < summary.Committed {
			return nil, stations.ErrBudgetBelowCommitted
		}
		area.StationBudget = *update.StationBudget
	}
	if err := s.areas.Save(ctx, area); err != nil {
		return nil, err
	}
	s.logger.Info("area updated", zap.String("area_id", area.ID), zap.Int("station_budget", area.StationBudget))
	return area, nil
}

// GetArea loads an area.
func (s *AreaService) GetArea(ctx context.Context, id string) (*stations.Area, error) {
	if id == "" {
		return nil, stations.ErrEmptyAreaID
	}
	area, err := s.areas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if area == nil {
		return nil, stations.ErrAreaNotFound
	}
	return area, nil
}

// ListAreas returns all areas.
func (s *AreaService) ListAreas(ctx context.Context) ([]stations.Area, error) {
	return s.areas.List(ctx)
}
