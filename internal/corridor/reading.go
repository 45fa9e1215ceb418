package corridor

import (
	"fmt"
	"time"
)

// SensorReading is one normalised detector report for a single intersection.
// A reading is consumed by the next tick's density update and then discarded;
// nothing in the corridor retains it.
type SensorReading struct {
	Intersection string    `json:"intersection"`
	Count        int       `json:"count"`                   // Vehicles queued on the approach
	Approaching  int       `json:"approaching,omitempty"`   // Vehicles inbound but not yet queued
	AvgSpeedMPS  float64   `json:"avg_speed_mps,omitempty"` // Mean approach speed in metres/second
	Incident     bool      `json:"incident,omitempty"`      // Detector-side incident flag
	Severity     float64   `json:"severity,omitempty"`      // Incident severity when flagged
	Timestamp    time.Time `json:"ts"`
}

// Validate rejects readings that cannot be applied to any intersection.
// Unknown intersection ids are caught later, against the corridor.
func (r SensorReading) Validate() error {
	if r.Intersection == "" {
		return fmt.Errorf("%w: empty intersection id", ErrInvalidReading)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: negative count %d for %s", ErrInvalidReading, r.Count, r.Intersection)
	}
	if r.Approaching < 0 {
		return fmt.Errorf("%w: negative approaching count %d for %s", ErrInvalidReading, r.Approaching, r.Intersection)
	}
	if r.AvgSpeedMPS < 0 {
		return fmt.Errorf("%w: negative approach speed %.2f for %s", ErrInvalidReading, r.AvgSpeedMPS, r.Intersection)
	}
	if r.Incident && r.Severity < 0 {
		return fmt.Errorf("%w: negative incident severity %.2f for %s", ErrInvalidReading, r.Severity, r.Intersection)
	}
	return nil
}

// IncidentSignal is a raw incident report before thresholding. The incident
// manager applies its own severity threshold; a signal is not yet an event.
type IncidentSignal struct {
	Intersection string    `json:"intersection"`
	Severity     float64   `json:"severity"`
	Timestamp    time.Time `json:"ts"`
}

// Validate rejects structurally malformed incident signals.
func (s IncidentSignal) Validate() error {
	if s.Intersection == "" {
		return fmt.Errorf("%w: empty intersection id", ErrInvalidReading)
	}
	if s.Severity < 0 {
		return fmt.Errorf("%w: negative incident severity %.2f for %s", ErrInvalidReading, s.Severity, s.Intersection)
	}
	return nil
}

// ClearRequest asks the incident manager to retire an active incident by id.
// Requests travel through the inbox so clearance is applied between ticks,
// never mid-pass.
type ClearRequest struct {
	IncidentID string    `json:"incident_id"`
	At         time.Time `json:"at"`
}
