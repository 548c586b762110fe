package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	stations "mobbi-manager/internal/stations/domain"
)

// PartnerInput describes a partner to create.
type PartnerInput struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	AreaID    string                    `json:"area_id"`
	Requested []stations.StationRequest `json:"requested_stations"`
}

// ContactInput describes a partner contact.
type ContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// PartnerService provides partner commands outside allocation and deletion.
type PartnerService struct {
	areas    stations.AreaRepository
	partners stations.PartnerRepository
	contacts stations.ContactRepository
	catalog  stations.Catalog
	logger   *zap.Logger
}

// NewPartnerService constructs a partner service.
func NewPartnerService(areas stations.AreaRepository, partners stations.PartnerRepository, contacts stations.ContactRepository, catalog stations.Catalog, logger *zap.Logger) (*PartnerService, error) {
	if areas == nil || partners == nil || contacts == nil || catalog == nil {
		return nil, errors.New("partner service: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartnerService{areas: areas, partners: partners, contacts: contacts, catalog: catalog, logger: logger}, nil
}

// CreatePartner stores a new partner in CONTATTO state.
func (s *PartnerService) CreatePartner(ctx context.Context, input PartnerInput) (*stations.Partner, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = "partner-" + uuid.NewString()
	}
	existing, err := s.partners.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, stations.ErrPartnerExists
	}
	areaID := strings.TrimSpace(input.AreaID)
	if areaID != "" {
		area, err := s.areas.Get(ctx, areaID)
		if err != nil {
			return nil, err
		}
		if area == nil {
			return nil, stations.ErrAreaNotFound
		}
	}
	requested, err := s.resolveRequests(ctx, input.Requested)
	if err != nil {
		return nil, err
	}
	partner := &stations.Partner{
		ID:        id,
		Name:      strings.TrimSpace(input.Name),
		AreaID:    areaID,
		Status:    stations.StatusContact,
		Requested: requested,
	}
	if err := s.partners.Save(ctx, partner); err != nil {
		return nil, err
	}
	s.logger.Info("partner created", zap.String("partner_id", partner.ID), zap.String("area_id", partner.AreaID))
	return partner, nil
}

// SetRequestedStations records the partner's own station request.
func (s *PartnerService) SetRequestedStations(ctx context.Context, partnerID string, requests []stations.StationRequest) (*stations.Partner, error) {
	partner, err := s.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner.HasAllocation() || partner.AllocationErr != nil {
		return nil, stations.ErrAlreadyAllocated
	}
	resolved, err := s.resolveRequests(ctx, requests)
	if err != nil {
		return nil, err
	}
	partner.Requested = resolved
	partner.RequestsErr = nil
	if err := s.partners.Save(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// TransitionStatus moves a partner along its lifecycle. ALLOCATO is only
// reachable through allocation.
func (s *PartnerService) TransitionStatus(ctx context.Context, partnerID string, next stations.PartnerStatus) (*stations.Partner, error) {
	if _, ok := stations.ParseStatus(string(next)); !ok || next == stations.StatusAllocated {
		return nil, stations.ErrInvalidTransition
	}
	partner, err := s.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if !partner.Status.CanTransition(next) {
		return nil, stations.ErrInvalidTransition
	}
	previous := partner.Status
	partner.Status = next
	if err := s.partners.Save(ctx, partner); err != nil {
		return nil, err
	}
	s.logger.Info("partner status changed",
		zap.String("partner_id", partner.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return partner, nil
}

// GetPartner loads a partner.
func (s *PartnerService) GetPartner(ctx context.Context, partnerID string) (*stations.Partner, error) {
	if partnerID == "" {
		return nil, stations.ErrEmptyPartnerID
	}
	partner, err := s.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, stations.ErrPartnerNotFound
	}
	return partner, nil
}

// ListPartnersByArea returns the partners of an area.
func (s *PartnerService) ListPartnersByArea(ctx context.Context, areaID string) ([]stations.Partner, error) {
	if areaID == "" {
		return nil, stations.ErrEmptyAreaID
	}
	return s.partners.ListByArea(ctx, areaID)
}

// AddContact stores a contact for a partner.
func (s *PartnerService) AddContact(ctx context.Context, partnerID string, input ContactInput) (*stations.Contact, error) {
	if _, err := s.GetPartner(ctx, partnerID); err != nil {
		return nil, err
	}
	contact := &stations.Contact{
		ID:        "contact-" + uuid.NewString(),
		PartnerID: partnerID,
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Role:      strings.TrimSpace(input.Role),
	}
	if err := s.contacts.Save(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// ListContacts returns a partner's contacts.
func (s *PartnerService) ListContacts(ctx context.Context, partnerID string) ([]stations.Contact, error) {
	if partnerID == "" {
		return nil, stations.ErrEmptyPartnerID
	}
	return s.contacts.ListByPartner(ctx, partnerID)
}

func (s *PartnerService) resolveRequests(ctx context.Context, requests []stations.StationRequest) ([]stations.StationRequest, error) {
	resolved := make([]stations.StationRequest, 0, len(requests))
	for _, req := range requests {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: requested quantity must be positive", stations.ErrValidation)
		}
		if req.Quantity > stations.MaxGrantQuantity {
			return nil, fmt.Errorf("%w: requested quantity exceeds %d", stations.ErrValidation, stations.MaxGrantQuantity)
		}
		model, err := s.catalog.GetModel(ctx, req.ModelID)
		if err != nil {
			return nil, err
		}
		if model == nil {
			return nil, fmt.Errorf("%w: unknown model %s", stations.ErrValidation, req.ModelID)
		}
		color, err := s.catalog.GetColor(ctx, req.ColorID)
		if err != nil {
			return nil, err
		}
		if color == nil || (color.ModelID != "" && color.ModelID != model.ID) {
			return nil, fmt.Errorf("%w: unknown color %s", stations.ErrValidation, req.ColorID)
		}
		req.ModelName = model.Name
		req.ColorName = color.Name
		resolved = append(resolved, req)
	}
	return resolved, nil
}
