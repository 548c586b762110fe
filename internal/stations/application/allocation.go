package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mobbi-manager/internal/observability/metrics"
	stations "mobbi-manager/internal/stations/domain"
)

const defaultAllocationRetries = 3

// Clock provides time for services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// GrantInput is one proposed station line.
type GrantInput struct {
	ModelID       string   `json:"model_id"`
	ColorID       string   `json:"color_id"`
	Quantity      int      `json:"quantity"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
}

// AllocationResult is returned after a committed allocation.
type AllocationResult struct {
	PartnerID       string                  `json:"partner_id"`
	AreaID          string                  `json:"area_id"`
	Grants          []stations.StationGrant `json:"grants"`
	Status          stations.PartnerStatus  `json:"status"`
	Requested       int                     `json:"requested"`
	AvailableBefore int                     `json:"available_before"`
	AvailableAfter  int                     `json:"available_after"`
	AllocatedAt     time.Time               `json:"allocated_at"`
}

// Reconciler matches partner station grants against area budgets.
type Reconciler struct {
	areas      stations.AreaRepository
	partners   stations.PartnerRepository
	catalog    stations.Catalog
	clock      Clock
	logger     *zap.Logger
	maxRetries int
}

// ReconcilerOption configures the reconciler.
type ReconcilerOption func(*Reconciler)

// WithMaxRetries bounds how many times a conflicting commit is retried.
func WithMaxRetries(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithReconcilerClock overrides the default clock.
func WithReconcilerClock(clock Clock) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(logger *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler constructs a reconciler.
func NewReconciler(areas stations.AreaRepository, partners stations.PartnerRepository, catalog stations.Catalog, opts ...ReconcilerOption) (*Reconciler, error) {
	if areas == nil {
		return nil, errors.New("reconciler: nil area repository")
	}
	if partners == nil {
		return nil, errors.New("reconciler: nil partner repository")
	}
	if catalog == nil {
		return nil, errors.New("reconciler: nil catalog")
	}
	r := &Reconciler{
		areas:      areas,
		partners:   partners,
		catalog:    catalog,
		clock:      systemClock{},
		logger:     zap.NewNop(),
		maxRetries: defaultAllocationRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Allocate validates proposed grants for a partner and commits them as the
// partner's one-time allocation.
func (r *Reconciler) Allocate(ctx context.Context, partnerID string, inputs []GrantInput) (*AllocationResult, error) {
	start := time.Now()
	result, err := r.allocate(ctx, partnerID, inputs)
	metrics.ObserveAllocation(allocationResultLabel(err), time.Since(start))
	return result, err
}

func (r *Reconciler) allocate(ctx context.Context, partnerID string, inputs []GrantInput) (*AllocationResult, error) {
	if partnerID == "" {
		return nil, stations.ErrEmptyPartnerID
	}
	for attempt := 1; ; attempt++ {
		result, err := r.tryAllocate(ctx, partnerID, inputs)
		if !errors.Is(err, stations.ErrAllocationConflict) {
			return result, err
		}
		metrics.IncAllocationConflict()
		r.logger.Info("allocation conflict, re-reading area state",
			zap.String("partner_id", partnerID),
			zap.Int("attempt", attempt),
		)
		if attempt >= r.maxRetries {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (r *Reconciler) tryAllocate(ctx context.Context, partnerID string, inputs []GrantInput) (*AllocationResult, error) {
	partner, err := r.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, stations.ErrPartnerNotFound
	}
	if !partner.DeletingAt.IsZero() {
		return nil, stations.ErrPartnerDeleting
	}
	if partner.AreaID == "" {
		return nil, stations.ErrPartnerWithoutArea
	}
	if partner.AllocationErr != nil {
		return nil, partner.AllocationErr
	}
	if partner.HasAllocation() {
		return nil, stations.ErrAlreadyAllocated
	}

	grants, err := r.resolveGrants(ctx, inputs)
	if err != nil {
		return nil, err
	}

	area, err := r.areas.Get(ctx, partner.AreaID)
	if err != nil {
		return nil, err
	}
	if area == nil {
		return nil, stations.ErrAreaNotFound
	}
	summary, err := r.summarize(ctx, *area, partner.ID)
	if err != nil {
		return nil, err
	}
	requested := stations.TotalQuantity(grants)
	if requested > summary.Available {
		return nil, &stations.BudgetExceededError{Requested: requested, Available: summary.Available}
	}
	if partner.Status != stations.StatusAllocated && !partner.Status.CanTransition(stations.StatusAllocated) {
		return nil, stations.ErrInvalidTransition
	}

	now := r.clock.Now()
	commit := stations.AllocationCommit{
		PartnerID:           partner.ID,
		AreaID:              area.ID,
		ExpectedAreaVersion: area.AllocationVersion,
		Grants:              grants,
		Status:              stations.StatusAllocated,
		AllocatedAt:         now,
	}
	if err := r.partners.CommitAllocation(ctx, commit); err != nil {
		return nil, err
	}

	r.logger.Info("stations allocated",
		zap.String("partner_id", partner.ID),
		zap.String("area_id", area.ID),
		zap.Int("requested", requested),
		zap.Int("available_before", summary.Available),
	)
	return &AllocationResult{
		PartnerID:       partner.ID,
		AreaID:          area.ID,
		Grants:          grants,
		Status:          stations.StatusAllocated,
		Requested:       requested,
		AvailableBefore: summary.Available,
		AvailableAfter:  summary.Available - requested,
		AllocatedAt:     now,
	}, nil
}

// AvailableBudget recomputes the budget of an area from current state.
func (r *Reconciler) AvailableBudget(ctx context.Context, areaID string) (stations.BudgetSummary, error) {
	if areaID == "" {
		return stations.BudgetSummary{}, stations.ErrEmptyAreaID
	}
	area, err := r.areas.Get(ctx, areaID)
	if err != nil {
		return stations.BudgetSummary{}, err
	}
	if area == nil {
		return stations.BudgetSummary{}, stations.ErrAreaNotFound
	}
	return r.summarize(ctx, *area, "")
}

func (r *Reconciler) summarize(ctx context.Context, area stations.Area, excludePartnerID string) (stations.BudgetSummary, error) {
	records, err := r.partners.AllocationsByArea(ctx, area.ID)
	if err != nil {
		return stations.BudgetSummary{}, err
	}
	for _, record := range records {
		if record.Err != nil && record.PartnerID != excludePartnerID {
			r.logger.Warn("skipping malformed stored allocation",
				zap.String("area_id", area.ID),
				zap.String("partner_id", record.PartnerID),
				zap.Error(record.Err),
			)
		}
	}
	summary := stations.ComputeBudget(area, records, excludePartnerID)
	metrics.AddMalformedRecords(len(summary.Malformed))
	return summary, nil
}

func (r *Reconciler) resolveGrants(ctx context.Context, inputs []GrantInput) ([]stations.StationGrant, error) {
	if len(inputs) == 0 {
		return nil, &stations.InvalidGrantError{Index: -1, Reason: "at least one grant is required"}
	}
	grants := make([]stations.StationGrant, 0, len(inputs))
	for i, input := range inputs {
		if input.Quantity <= 0 {
			return nil, &stations.InvalidGrantError{Index: i, Reason: "quantity must be positive"}
		}
		if input.Quantity > stations.MaxGrantQuantity {
			return nil, &stations.InvalidGrantError{Index: i, Reason: fmt.Sprintf("quantity exceeds %d", stations.MaxGrantQuantity)}
		}
		modelID := strings.TrimSpace(input.ModelID)
		colorID := strings.TrimSpace(input.ColorID)
		if modelID == "" {
			return nil, &stations.InvalidGrantError{Index: i, Reason: "model is required"}
		}
		if colorID == "" {
			return nil, &stations.InvalidGrantError{Index: i, Reason: "color is required"}
		}
		model, err := r.catalog.GetModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		if model == nil {
			return nil, &stations.InvalidGrantError{Index: i, Reason: "unknown model " + modelID}
		}
		color, err := r.catalog.GetColor(ctx, colorID)
		if err != nil {
			return nil, err
		}
		if color == nil || (color.ModelID != "" && color.ModelID != model.ID) {
			return nil, &stations.InvalidGrantError{Index: i, Reason: "unknown color " + colorID + " for model " + modelID}
		}

		var serials []string
		for _, serial := range input.SerialNumbers {
			if serial = strings.TrimSpace(serial); serial != "" {
				serials = append(serials, serial)
			}
		}
		grants = append(grants, stations.StationGrant{
			ModelID:       model.ID,
			ModelName:     model.Name,
			ColorID:       color.ID,
			ColorName:     color.Name,
			Quantity:      input.Quantity,
			SerialNumbers: serials,
		})
	}
	return grants, nil
}

func allocationResultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, stations.ErrAllocationConflict):
		return metrics.ResultConflict
	case errors.Is(err, stations.ErrAlreadyAllocated),
		errors.Is(err, stations.ErrInvalidGrant),
		errors.Is(err, stations.ErrBudgetExceeded),
		errors.Is(err, stations.ErrInvalidTransition),
		errors.Is(err, stations.ErrPartnerDeleting):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
