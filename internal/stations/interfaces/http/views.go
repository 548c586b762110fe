package http

import (
	"time"

	stations "mobbi-manager/internal/stations/domain"
)

type areaView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Region            string    `json:"region"`
	StationBudget     int       `json:"station_budget"`
	AllocationVersion int64     `json:"allocation_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newAreaView(area stations.Area) areaView {
	return areaView{
		ID:                area.ID,
		Name:              area.Name,
		Region:            area.Region,
		StationBudget:     area.StationBudget,
		AllocationVersion: area.AllocationVersion,
		CreatedAt:         area.CreatedAt,
		UpdatedAt:         area.UpdatedAt,
	}
}

type partnerView struct {
	ID                string                    `json:"id"`
	Name              string                    `json:"name"`
	AreaID            string                    `json:"area_id,omitempty"`
	Status            stations.PartnerStatus    `json:"status"`
	RequestedStations []stations.StationRequest `json:"requested_stations"`
	AllocatedStations []stations.StationGrant   `json:"allocated_stations"`
	AllocatedAt       *time.Time                `json:"allocated_at,omitempty"`
	AllocationError   string                    `json:"allocation_error,omitempty"`
	RequestsError     string                    `json:"requests_error,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

func newPartnerView(partner stations.Partner) partnerView {
	view := partnerView{
		ID:                partner.ID,
		Name:              partner.Name,
		AreaID:            partner.AreaID,
		Status:            partner.Status,
		RequestedStations: partner.Requested,
		AllocatedStations: partner.Allocated,
		CreatedAt:         partner.CreatedAt,
		UpdatedAt:         partner.UpdatedAt,
	}
	if view.RequestedStations == nil {
		view.RequestedStations = []stations.StationRequest{}
	}
	if view.AllocatedStations == nil {
		view.AllocatedStations = []stations.StationGrant{}
	}
	if !partner.AllocatedAt.IsZero() {
		allocatedAt := partner.AllocatedAt
		view.AllocatedAt = &allocatedAt
	}
	if partner.AllocationErr != nil {
		view.AllocationError = partner.AllocationErr.Error()
	}
	if partner.RequestsErr != nil {
		view.RequestsError = partner.RequestsErr.Error()
	}
	return view
}

func newPartnerViews(partners []stations.Partner) []partnerView {
	views := make([]partnerView, 0, len(partners))
	for _, partner := range partners {
		views = append(views, newPartnerView(partner))
	}
	return views
}

type contactView struct {
	ID        string    `json:"id"`
	PartnerID string    `json:"partner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newContactView(contact stations.Contact) contactView {
	return contactView{
		ID:        contact.ID,
		PartnerID: contact.PartnerID,
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Role:      contact.Role,
		CreatedAt: contact.CreatedAt,
	}
}
