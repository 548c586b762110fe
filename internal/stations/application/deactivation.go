package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mobbi-manager/internal/observability/metrics"
	stations "mobbi-manager/internal/stations/domain"
)

// Local deletion steps reported when the partner is left half-deleted.
const (
	// StepDeleteContacts removes the partner's contacts.
	StepDeleteContacts = "delete_contacts"
	// StepDeletePartner removes the partner row itself.
	StepDeletePartner = "delete_partner"
)

// SequencerConfig carries the device-management credential.
type SequencerConfig struct {
	APIToken string
}

// LocalDeletionAlert describes a partner left half-deleted after its devices
// were released.
type LocalDeletionAlert struct {
	PartnerID       string
	PartnerName     string
	AreaID          string
	Step            string
	ReleasedSerials []string
	ContactsDeleted int
	Error           string
}

// Alerter escalates inconsistent local state to operators.
type Alerter interface {
	AlertLocalDeletion(ctx context.Context, alert LocalDeletionAlert) error
}

// DeactivationResult summarizes a completed deactivation.
type DeactivationResult struct {
	PartnerID       string                  `json:"partner_id"`
	AreaID          string                  `json:"area_id,omitempty"`
	SerialNumbers   []string                `json:"serial_numbers"`
	Release         *stations.ReleaseReport `json:"release,omitempty"`
	ContactsDeleted int                     `json:"contacts_deleted"`
	DeletedAt       time.Time               `json:"deleted_at"`
}

// Sequencer releases a partner's devices and then deletes the partner.
type Sequencer struct {
	partners stations.PartnerRepository
	contacts stations.ContactRepository
	releaser stations.DeviceReleaser
	cfg      SequencerConfig
	alerter  Alerter
	clock    Clock
	logger   *zap.Logger
}

// SequencerOption configures the sequencer.
type SequencerOption func(*Sequencer)

// WithAlerter sets the operator alert channel.
func WithAlerter(alerter Alerter) SequencerOption {
	return func(s *Sequencer) {
		s.alerter = alerter
	}
}

// WithSequencerLogger sets the logger.
func WithSequencerLogger(logger *zap.Logger) SequencerOption {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSequencerClock overrides the default clock.
func WithSequencerClock(clock Clock) SequencerOption {
	return func(s *Sequencer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSequencer constructs a sequencer. A nil releaser is allowed and behaves
// as an unconfigured device-management integration.
func NewSequencer(partners stations.PartnerRepository, contacts stations.ContactRepository, releaser stations.DeviceReleaser, cfg SequencerConfig, opts ...SequencerOption) (*Sequencer, error) {
	if partners == nil {
		return nil, errors.New("sequencer: nil partner repository")
	}
	if contacts == nil {
		return nil, errors.New("sequencer: nil contact repository")
	}
	s := &Sequencer{
		partners: partners,
		contacts: contacts,
		releaser: releaser,
		cfg:      cfg,
		clock:    systemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeactivateAndDelete returns the partner's devices to the warehouse and,
// only when every device was released, deletes its contacts and then the
// partner itself.
func (s *Sequencer) DeactivateAndDelete(ctx context.Context, partnerID string) (*DeactivationResult, error) {
	start := time.Now()
	result, err := s.deactivateAndDelete(ctx, partnerID)
	metrics.ObserveDeactivation(deactivationResultLabel(err), time.Since(start))
	return result, err
}

func (s *Sequencer) deactivateAndDelete(ctx context.Context, partnerID string) (*DeactivationResult, error) {
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
	// Without a readable allocation the serial numbers are unknown.
	if partner.AllocationErr != nil {
		return nil, partner.AllocationErr
	}

	serials := stations.SerialNumbers(partner.Allocated)
	result := &DeactivationResult{PartnerID: partner.ID, AreaID: partner.AreaID, SerialNumbers: serials}

	if len(serials) > 0 && (s.cfg.APIToken == "" || s.releaser == nil) {
		return nil, stations.ErrNoExternalCredentials
	}

	// An allocation committed after the read above makes the mark fail,
	// so nothing is deleted without its devices being released.
	if err := s.partners.MarkDeleting(ctx, partner.ID, !partner.HasAllocation()); err != nil {
		if errors.Is(err, stations.ErrAllocationConflict) {
			s.logger.Warn("partner allocation changed during deletion, partner kept",
				zap.String("partner_id", partner.ID),
				zap.Int("serials_read", len(serials)),
			)
		}
		return nil, err
	}

	if len(serials) > 0 {
		report, err := s.release(ctx, partner, serials)
		if err != nil {
			return nil, err
		}
		result.Release = &report
	}

	deleted, err := s.contacts.DeleteByPartner(ctx, partner.ID)
	if err != nil {
		return nil, s.localFailure(ctx, partner, serials, StepDeleteContacts, 0, err)
	}
	result.ContactsDeleted = deleted

	if err := s.partners.Delete(ctx, partner.ID); err != nil {
		return nil, s.localFailure(ctx, partner, serials, StepDeletePartner, deleted, err)
	}
	result.DeletedAt = s.clock.Now()

	s.logger.Info("partner deactivated and deleted",
		zap.String("partner_id", partner.ID),
		zap.String("area_id", partner.AreaID),
		zap.Int("devices_released", len(serials)),
		zap.Int("contacts_deleted", deleted),
	)
	return result, nil
}

func (s *Sequencer) release(ctx context.Context, partner *stations.Partner, serials []string) (stations.ReleaseReport, error) {
	report, err := s.releaser.ReleaseDevices(ctx, serials)
	failed := report.Failures(serials)
	if err != nil || len(failed) > 0 {
		releaseErr := &stations.DeviceReleaseError{Failed: failed, Err: err}
		s.logger.Warn("device release failed, partner kept",
			zap.String("partner_id", partner.ID),
			zap.String("batch_id", report.BatchID),
			zap.Strings("failed_serials", releaseErr.FailedSerials()),
			zap.Error(err),
		)
		return report, releaseErr
	}
	return report, nil
}

func (s *Sequencer) localFailure(ctx context.Context, partner *stations.Partner, serials []string, step string, contactsDeleted int, cause error) error {
	metrics.IncLocalDeletionFailure()
	s.logger.Error("partner deletion stopped after devices were released; manual reconciliation required",
		zap.String("partner_id", partner.ID),
		zap.String("area_id", partner.AreaID),
		zap.String("step", step),
		zap.Strings("released_serials", serials),
		zap.Int("contacts_deleted", contactsDeleted),
		zap.Error(cause),
	)
	if s.alerter != nil {
		alert := LocalDeletionAlert{
			PartnerID:       partner.ID,
			PartnerName:     partner.Name,
			AreaID:          partner.AreaID,
			Step:            step,
			ReleasedSerials: serials,
			ContactsDeleted: contactsDeleted,
			Error:           cause.Error(),
		}
		if err := s.alerter.AlertLocalDeletion(ctx, alert); err != nil {
			s.logger.Error("local deletion alert failed", zap.String("partner_id", partner.ID), zap.Error(err))
		}
	}
	return &stations.LocalDeletionError{PartnerID: partner.ID, Step: step, Err: cause}
}

func deactivationResultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, stations.ErrAllocationConflict):
		return metrics.ResultConflict
	case errors.Is(err, stations.ErrPartialDeviceFailure), errors.Is(err, stations.ErrNoExternalCredentials):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
