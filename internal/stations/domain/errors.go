package stations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPartnerID is returned when a partner id is missing.
	ErrEmptyPartnerID = errors.New("stations: empty partner id")
	// ErrEmptyAreaID is returned when an area id is missing.
	ErrEmptyAreaID = errors.New("stations: empty area id")
	// ErrPartnerNotFound is returned when a partner does not exist.
	ErrPartnerNotFound = errors.New("stations: partner not found")
	// ErrAreaNotFound is returned when an area does not exist.
	ErrAreaNotFound = errors.New("stations: area not found")
	// ErrValidation wraps field-level validation failures.
	ErrValidation = errors.New("stations: validation failed")
	// ErrPartnerExists is returned when creating a partner whose id is taken.
	ErrPartnerExists = errors.New("stations: partner already exists")
	// ErrAreaExists is returned when creating an area whose id is taken.
	ErrAreaExists = errors.New("stations: area already exists")
	// ErrPartnerWithoutArea is returned when a partner has no area reference.
	ErrPartnerWithoutArea = errors.New("stations: partner has no area")
	// ErrAlreadyAllocated is returned when a partner already holds stations.
	ErrAlreadyAllocated = errors.New("stations: partner already allocated")
	// ErrInvalidGrant is returned when a proposed grant does not validate.
	ErrInvalidGrant = errors.New("stations: invalid grant")
	// ErrBudgetExceeded is returned when a request does not fit the area budget.
	ErrBudgetExceeded = errors.New("stations: budget exceeded")
	// ErrBudgetBelowCommitted is returned when a budget edit would drop below allocated stations.
	ErrBudgetBelowCommitted = errors.New("stations: budget below committed stations")
	// ErrAllocationConflict is returned when area allocation state changed under a write.
	ErrAllocationConflict = errors.New("stations: allocation conflict")
	// ErrMalformedAllocation is returned when a stored allocation cannot be decoded.
	ErrMalformedAllocation = errors.New("stations: malformed stored allocation")
	// ErrPartnerDeleting is returned when allocating to a partner marked for deletion.
	ErrPartnerDeleting = errors.New("stations: partner is being deleted")
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("stations: invalid status transition")
	// ErrNoExternalCredentials is returned when the device API token is not configured.
	ErrNoExternalCredentials = errors.New("stations: device api token not configured")
	// ErrPartialDeviceFailure is returned when one or more devices were not released.
	ErrPartialDeviceFailure = errors.New("stations: device release failed")
	// ErrLocalDeletionFailure is returned when devices were released but local records were not fully deleted.
	ErrLocalDeletionFailure = errors.New("stations: local deletion failed")
)

// InvalidGrantError describes the first grant that failed validation.
// Index is -1 when the request as a whole is invalid.
type InvalidGrantError struct {
	Index  int
	Reason string
}

func (e *InvalidGrantError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("stations: invalid grant: %s", e.Reason)
	}
	return fmt.Sprintf("stations: invalid grant #%d: %s", e.Index+1, e.Reason)
}

// Is matches ErrInvalidGrant.
func (e *InvalidGrantError) Is(target error) bool { return target == ErrInvalidGrant }

// BudgetExceededError carries the numbers behind a rejected allocation.
type BudgetExceededError struct {
	Requested int
	Available int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("stations: budget exceeded: requested %d, available %d", e.Requested, e.Available)
}

// Is matches ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// DeviceReleaseError lists the serial numbers that could not be released.
type DeviceReleaseError struct {
	Failed []ReleaseOutcome
	Err    error
}

func (e *DeviceReleaseError) Error() string {
	var b strings.Builder
	b.WriteString("stations: device release failed")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, outcome := range e.Failed {
		fmt.Fprintf(&b, "; %s", outcome.SerialNumber)
		if len(outcome.Errors) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(outcome.Errors, ", "))
		}
	}
	return b.String()
}

// Is matches ErrPartialDeviceFailure.
func (e *DeviceReleaseError) Is(target error) bool { return target == ErrPartialDeviceFailure }

func (e *DeviceReleaseError) Unwrap() error { return e.Err }

// FailedSerials returns the serial numbers that were not released.
func (e *DeviceReleaseError) FailedSerials() []string {
	serials := make([]string, 0, len(e.Failed))
	for _, outcome := range e.Failed {
		serials = append(serials, outcome.SerialNumber)
	}
	return serials
}

// LocalDeletionError reports a deletion that stopped after devices were released.
type LocalDeletionError struct {
	PartnerID string
	Step      string
	Err       error
}

func (e *LocalDeletionError) Error() string {
	return fmt.Sprintf("stations: local deletion failed for partner %s at %s: %v", e.PartnerID, e.Step, e.Err)
}

// Is matches ErrLocalDeletionFailure.
func (e *LocalDeletionError) Is(target error) bool { return target == ErrLocalDeletionFailure }

func (e *LocalDeletionError) Unwrap() error { return e.Err }
