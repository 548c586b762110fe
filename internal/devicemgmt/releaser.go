package devicemgmt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobbi-manager/internal/observability/metrics"
	stations "mobbi-manager/internal/stations/domain"
)

const (
	stepVenue    = "venue"
	stepMerchant = "merchant"
)

// VenueMover reassigns a device to a venue.
type VenueMover interface {
	MoveToVenue(ctx context.Context, serial, venueID string, clearTags []string) error
}

// MerchantResetter clears a device's point-of-sale binding.
type MerchantResetter interface {
	ResetMerchant(ctx context.Context, serial string) error
}

// Releaser returns devices to the warehouse venue and resets their merchant
// binding.
type Releaser struct {
	venues      VenueMover
	merchants   MerchantResetter
	warehouseID string
	clearTags   []string
	logger      *zap.Logger
}

// NewReleaser constructs a releaser.
func NewReleaser(venues VenueMover, merchants MerchantResetter, cfg Config, logger *zap.Logger) (*Releaser, error) {
	if venues == nil {
		return nil, errors.New("releaser: nil venue mover")
	}
	if merchants == nil {
		return nil, errors.New("releaser: nil merchant resetter")
	}
	if cfg.WarehouseVenueID == "" {
		return nil, errors.New("releaser: empty warehouse venue id")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Releaser{
		venues:      venues,
		merchants:   merchants,
		warehouseID: cfg.WarehouseVenueID,
		clearTags:   cfg.ClearTags,
		logger:      logger,
	}, nil
}

// New builds a releaser backed by the HTTP inventory and merchant clients.
func New(cfg Config, logger *zap.Logger) (*Releaser, error) {
	inventoryHTTP, err := NewClient(cfg.InventoryBaseURL, cfg.APIToken, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	merchantHTTP, err := NewClient(cfg.MerchantBaseURL, cfg.APIToken, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryClient(inventoryHTTP)
	if err != nil {
		return nil, err
	}
	merchant, err := NewMerchantClient(merchantHTTP)
	if err != nil {
		return nil, err
	}
	return NewReleaser(inventory, merchant, cfg, logger)
}

// ReleaseDevices processes every serial in one batch. For each serial the
// venue move and the merchant reset are both attempted; the outcome records
// each step. Once ctx is done the remaining serials are reported as failed
// without being attempted.
func (r *Releaser) ReleaseDevices(ctx context.Context, serials []string) (stations.ReleaseReport, error) {
	report := stations.ReleaseReport{
		BatchID:  "release-" + uuid.NewString(),
		Outcomes: make([]stations.ReleaseOutcome, 0, len(serials)),
	}
	for i, serial := range serials {
		if err := ctx.Err(); err != nil {
			for _, rest := range serials[i:] {
				report.Outcomes = append(report.Outcomes, stations.ReleaseOutcome{
					SerialNumber: rest,
					Errors:       []string{err.Error()},
				})
			}
			return report, err
		}
		report.Outcomes = append(report.Outcomes, r.releaseOne(ctx, report.BatchID, serial))
	}
	return report, nil
}

func (r *Releaser) releaseOne(ctx context.Context, batchID, serial string) stations.ReleaseOutcome {
	outcome := stations.ReleaseOutcome{SerialNumber: serial}

	if err := r.step(ctx, stepVenue, func(ctx context.Context) error {
		return r.venues.MoveToVenue(ctx, serial, r.warehouseID, r.clearTags)
	}); err != nil {
		outcome.Errors = append(outcome.Errors, stepVenue+": "+err.Error())
	} else {
		outcome.VenueMoved = true
	}

	if err := r.step(ctx, stepMerchant, func(ctx context.Context) error {
		return r.merchants.ResetMerchant(ctx, serial)
	}); err != nil {
		outcome.Errors = append(outcome.Errors, stepMerchant+": "+err.Error())
	} else {
		outcome.MerchantReset = true
	}

	if !outcome.Released() {
		r.logger.Warn("device release incomplete",
			zap.String("batch_id", batchID),
			zap.String("serial_number", serial),
			zap.Bool("venue_moved", outcome.VenueMoved),
			zap.Bool("merchant_reset", outcome.MerchantReset),
			zap.Strings("errors", outcome.Errors),
		)
	}
	return outcome
}

func (r *Releaser) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveDeviceRelease(name, result, time.Since(start))
	return err
}
