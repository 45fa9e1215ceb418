package corridor

import "time"

// Phase represents the signal head state of an intersection.
type Phase string

const (
	PhaseGreen  Phase = "green"  // Discharging its queue toward the next intersection
	PhaseYellow Phase = "yellow" // Fixed-length clearance interval
	PhaseRed    Phase = "red"    // Holding until the cycle returns
)

// Next returns the phase that follows p in the fixed cycle
// green -> yellow -> red -> green. Phases are never skipped.
func (p Phase) Next() Phase {
	switch p {
	case PhaseGreen:
		return PhaseYellow
	case PhaseYellow:
		return PhaseRed
	default:
		return PhaseGreen
	}
}

// Reason tags how a decision's phase and duration were chosen.
type Reason string

const (
	ReasonNormal           Reason = "normal"            // Density-derived timing
	ReasonDownstreamHold   Reason = "downstream_hold"   // Truncated because downstream headroom fell below threshold
	ReasonIncidentOverride Reason = "incident_override" // Directive from the incident manager is authoritative
)

// DirectiveAction is the instruction carried by an incident override.
type DirectiveAction string

const (
	ActionForceRed    DirectiveAction = "force_red"    // Stop discharge into a blocked segment
	ActionExtendGreen DirectiveAction = "extend_green" // Divert flow away at an upstream neighbour
	ActionHold        DirectiveAction = "hold"         // Leave normal computation in place
)

// precedence orders contradictory directives targeting one intersection.
// Larger wins: force_red > extend_green > hold.
func (a DirectiveAction) precedence() int {
	switch a {
	case ActionForceRed:
		return 2
	case ActionExtendGreen:
		return 1
	default:
		return 0
	}
}

// Directive is an incident-derived instruction for a single intersection.
// While an incident is active its directives replace density-derived timing
// entirely on every tick.
type Directive struct {
	Action     DirectiveAction
	IncidentID string
}

// PhaseDecision is one intersection's signal assignment for one tick.
// Decisions are immutable once emitted; sinks must not retain references
// into corridor state.
type PhaseDecision struct {
	Intersection string
	Tick         uint64
	Phase        Phase
	Duration     time.Duration
	Reason       Reason
	Density      float64
	Changed      bool
	DecidedAt    time.Time
}
