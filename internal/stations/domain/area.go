package stations

import (
	"context"
	"fmt"
	"time"
)

// Area is a territory with a finite station budget.
type Area struct {
	ID            string
	Name          string
	Region        string
	StationBudget int
	// AllocationVersion increases on every budget edit and every committed
	// allocation in the area. Writes are conditional on it.
	AllocationVersion int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks area invariants.
func (a Area) Validate() error {
	if a.ID == "" {
		return ErrEmptyAreaID
	}
	if a.Name == "" {
		return fmt.Errorf("%w: area name is empty", ErrValidation)
	}
	if a.StationBudget < 0 {
		return fmt.Errorf("%w: station budget is negative", ErrValidation)
	}
	return nil
}

// AreaRepository manages area persistence.
type AreaRepository interface {
	Get(ctx context.Context, id string) (*Area, error)
	List(ctx context.Context) ([]Area, error)
	// Save upserts the area when its stored AllocationVersion still equals
	// area.AllocationVersion and then advances it. Returns ErrAllocationConflict otherwise.
	Save(ctx context.Context, area *Area) error
}
