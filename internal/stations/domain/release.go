package stations

import "context"

// ReleaseOutcome is the result of returning one device to the warehouse.
type ReleaseOutcome struct {
	SerialNumber  string   `json:"serial_number"`
	VenueMoved    bool     `json:"venue_moved"`
	MerchantReset bool     `json:"merchant_reset"`
	Errors        []string `json:"errors,omitempty"`
}

// Released reports whether both release steps succeeded.
func (o ReleaseOutcome) Released() bool {
	return o.VenueMoved && o.MerchantReset
}

// ReleaseReport is the result of one release batch.
type ReleaseReport struct {
	BatchID  string           `json:"batch_id"`
	Outcomes []ReleaseOutcome `json:"outcomes"`
}

// Failures returns outcomes for serials that were not fully released.
// Requested serials missing from the report count as failures.
func (r ReleaseReport) Failures(requested []string) []ReleaseOutcome {
	bySerial := make(map[string]ReleaseOutcome, len(r.Outcomes))
	for _, outcome := range r.Outcomes {
		bySerial[outcome.SerialNumber] = outcome
	}
	var failed []ReleaseOutcome
	for _, serial := range requested {
		outcome, ok := bySerial[serial]
		if !ok {
			failed = append(failed, ReleaseOutcome{SerialNumber: serial, Errors: []string{"no outcome reported"}})
			continue
		}
		if !outcome.Released() {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// DeviceReleaser returns devices to neutral inventory in the external
// device-management systems.
type DeviceReleaser interface {
	ReleaseDevices(ctx context.Context, serials []string) (ReleaseReport, error)
}
