package stations

import (
	"context"
	"fmt"
	"time"
)

// PartnerStatus is the partner lifecycle state.
type PartnerStatus string

const (
	StatusContact    PartnerStatus = "CONTATTO"
	StatusApproved   PartnerStatus = "APPROVATO"
	StatusSelected   PartnerStatus = "SELEZIONATO"
	StatusAllocated  PartnerStatus = "ALLOCATO"
	StatusContracted PartnerStatus = "CONTRATTUALIZZATO"
	StatusActive     PartnerStatus = "ATTIVO"
	StatusLost       PartnerStatus = "PERSO"
)

var transitions = map[PartnerStatus][]PartnerStatus{
	StatusContact:    {StatusApproved, StatusSelected, StatusAllocated, StatusLost},
	StatusApproved:   {StatusSelected, StatusAllocated, StatusLost},
	StatusSelected:   {StatusAllocated, StatusLost},
	StatusAllocated:  {StatusContracted, StatusLost},
	StatusContracted: {StatusActive, StatusLost},
}

// ParseStatus validates a status string.
func ParseStatus(value string) (PartnerStatus, bool) {
	switch status := PartnerStatus(value); status {
	case StatusContact, StatusApproved, StatusSelected, StatusAllocated, StatusContracted, StatusActive, StatusLost:
		return status, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is possible.
func (s PartnerStatus) Terminal() bool {
	return s == StatusActive || s == StatusLost
}

// CanTransition reports whether s may move to next.
func (s PartnerStatus) CanTransition(next PartnerStatus) bool {
	if s == "" {
		s = StatusContact
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Partner is a business holding or requesting stations in an area.
type Partner struct {
	ID     string
	Name   string
	AreaID string
	Status PartnerStatus

	Requested   []StationRequest
	Allocated   []StationGrant
	AllocatedAt time.Time
	// AllocationErr is set by storage adapters when the stored allocation
	// could not be decoded. Allocated is empty in that case.
	AllocationErr error
	// RequestsErr is set when the stored requests could not be decoded.
	// Save keeps the stored value while it is set.
	RequestsErr error
	// DeletingAt is set once a deletion started; no allocation commits after it.
	DeletingAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks partner invariants.
func (p Partner) Validate() error {
	if p.ID == "" {
		return ErrEmptyPartnerID
	}
	if p.Name == "" {
		return fmt.Errorf("%w: partner name is empty", ErrValidation)
	}
	if p.Status != "" {
		if _, ok := ParseStatus(string(p.Status)); !ok {
			return fmt.Errorf("%w: unknown partner status %q", ErrValidation, p.Status)
		}
	}
	for _, req := range p.Requested {
		if req.Quantity <= 0 {
			return fmt.Errorf("%w: requested quantity must be positive", ErrValidation)
		}
	}
	return nil
}

// HasAllocation reports whether the partner already holds granted stations.
func (p Partner) HasAllocation() bool {
	return len(p.Allocated) > 0
}

// AllocatedQuantity sums the partner's granted stations.
func (p Partner) AllocatedQuantity() int {
	return TotalQuantity(p.Allocated)
}

// RequestedQuantity sums the partner's requested stations.
func (p Partner) RequestedQuantity() int {
	total := 0
	for _, req := range p.Requested {
		if req.Quantity > 0 {
			total = addQuantity(total, req.Quantity)
		}
	}
	return total
}

// AllocationCommit is the single write that records a partner allocation.
type AllocationCommit struct {
	PartnerID           string
	AreaID              string
	ExpectedAreaVersion int64
	Grants              []StationGrant
	Status              PartnerStatus
	AllocatedAt         time.Time
}

// PartnerRepository manages partner persistence.
type PartnerRepository interface {
	Get(ctx context.Context, id string) (*Partner, error)
	ListByArea(ctx context.Context, areaID string) ([]Partner, error)
	// AllocationsByArea returns the committed allocation of every partner in
	// the area. Records that failed to decode carry Err.
	AllocationsByArea(ctx context.Context, areaID string) ([]AllocationRecord, error)
	// Save upserts partner details; it never touches the allocation.
	Save(ctx context.Context, partner *Partner) error
	// CommitAllocation writes grants and status together. It returns
	// ErrAllocationConflict when the area version moved, the partner is
	// no longer unallocated in that area, or it is marked for deletion.
	CommitAllocation(ctx context.Context, commit AllocationCommit) error
	// MarkDeleting flags the partner for deletion. With expectUnallocated
	// it only succeeds while the stored allocation is still empty and
	// returns ErrAllocationConflict otherwise.
	MarkDeleting(ctx context.Context, id string, expectUnallocated bool) error
	Delete(ctx context.Context, id string) error
}
