package corridor

import (
	"fmt"
	"math"
	"time"

	"github.com/nnikhil6/greenwave/internal/monitoring"
)

// Constants for clearance-rate adaptation
const (
	// ClearanceHistoryLength is the number of completed green cycles kept for adaptation
	ClearanceHistoryLength = 5
	// LowClearanceRatio is the mean clearance below which greens are lengthened
	LowClearanceRatio = 0.7
	// HighClearanceRatio is the mean clearance above which greens are shortened
	HighClearanceRatio = 0.9
	// LowClearanceBoost is added to computed greens while clearance stays poor
	LowClearanceBoost = 5 * time.Second
	// HighClearanceTrim is removed from computed greens while clearance stays high
	HighClearanceTrim = 3 * time.Second
)

// TimingConfig holds the corridor-wide timing parameters applied to every
// intersection.
type TimingConfig struct {
	SmoothingAlpha    float64       // Density EWMA weight for new observations, in [0,1]
	MinGreen          time.Duration // Lower clamp for computed green
	MaxGreen          time.Duration // Upper clamp for computed green
	Yellow            time.Duration // Fixed clearance interval
	HeadroomThreshold float64       // Downstream free capacity below which green is held back
	ApproachGain      time.Duration // Green added per approaching vehicle
	ApproachCap       time.Duration // Upper bound on the approaching bonus
}

// DefaultTimingConfig returns the stock timing parameters.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		SmoothingAlpha:    0.4,
		MinGreen:          10 * time.Second,
		MaxGreen:          45 * time.Second,
		Yellow:            3 * time.Second,
		HeadroomThreshold: 2.0,
		ApproachGain:      2 * time.Second,
		ApproachCap:       10 * time.Second,
	}
}

// Validate checks the timing parameters for structural errors.
func (c TimingConfig) Validate() error {
	if c.SmoothingAlpha < 0 || c.SmoothingAlpha > 1 {
		return &ConfigError{Field: "smoothing_alpha", Detail: fmt.Sprintf("must be in [0,1], got %v", c.SmoothingAlpha)}
	}
	if c.MinGreen <= 0 {
		return &ConfigError{Field: "min_green_ms", Detail: "must be positive"}
	}
	if c.MaxGreen < c.MinGreen {
		return &ConfigError{Field: "max_green_ms", Detail: "must be at least min_green_ms"}
	}
	if c.Yellow <= 0 {
		return &ConfigError{Field: "yellow_ms", Detail: "must be positive"}
	}
	if c.HeadroomThreshold < 0 {
		return &ConfigError{Field: "capacity_headroom_threshold", Detail: "must not be negative"}
	}
	if c.ApproachGain < 0 {
		return &ConfigError{Field: "approach_gain_ms", Detail: "must not be negative"}
	}
	if c.ApproachCap < 0 {
		return &ConfigError{Field: "approach_cap_ms", Detail: "must not be negative"}
	}
	return nil
}

// Intersection is one signalised junction in a corridor. The corridor owns it
// exclusively: all mutation happens on the corridor's tick goroutine under the
// corridor lock, and readers go through Corridor.Snapshot.
type Intersection struct {
	// Identity
	ID       string
	Position int // Index along the corridor; 0 is most upstream

	// Signal state
	Phase    Phase
	Elapsed  time.Duration // Time spent in the current phase
	Assigned time.Duration // Duration the current phase runs before cycling
	Reason   Reason        // Why the last assignment was chosen

	// Demand estimate
	Density     float64 // Smoothed queue estimate, clamped to [0, Capacity]
	Capacity    float64 // Vehicles the approach holds before upstream must hold back
	Approaching int     // Latest inbound-but-not-yet-queued count
	AvgSpeedMPS float64 // Latest mean approach speed

	// Intake bookkeeping
	LastReadingAt time.Time
	ReadingCount  int64

	// Clearance-rate adaptation over completed green cycles
	greenEntryDensity float64
	clearanceHistory  []float64
	lastAdjustment    time.Duration

	// The green computed this tick, applied on the next entry into GREEN
	pendingGreen  time.Duration
	pendingReason Reason

	cfg TimingConfig
}

// NewIntersection builds one junction. The corridor's first intersection
// starts GREEN; every other position starts RED.
func NewIntersection(id string, position int, capacity float64, cfg TimingConfig) *Intersection {
	ix := &Intersection{
		ID:            id,
		Position:      position,
		Capacity:      capacity,
		Phase:         PhaseRed,
		Assigned:      cfg.MaxGreen,
		Reason:        ReasonNormal,
		pendingGreen:  cfg.MinGreen,
		pendingReason: ReasonNormal,
		cfg:           cfg,
	}
	if position == 0 {
		ix.Phase = PhaseGreen
		ix.Assigned = cfg.MinGreen
	}
	return ix
}

// UpdateDensity folds one reading into the smoothed estimate:
// new = alpha*observed + (1-alpha)*old, clamped to [0, Capacity].
func (ix *Intersection) UpdateDensity(r SensorReading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Intersection != ix.ID {
		return fmt.Errorf("%w: reading for %q applied to %q", ErrUnknownIntersection, r.Intersection, ix.ID)
	}

	alpha := ix.cfg.SmoothingAlpha
	ix.Density = alpha*float64(r.Count) + (1-alpha)*ix.Density
	ix.Density = math.Min(math.Max(ix.Density, 0), ix.Capacity)
	ix.Approaching = r.Approaching
	if r.AvgSpeedMPS > 0 {
		ix.AvgSpeedMPS = r.AvgSpeedMPS
	}
	ix.LastReadingAt = r.Timestamp
	ix.ReadingCount++

	Tracef("reading %s: count=%d approaching=%d density=%.2f", ix.ID, r.Count, r.Approaching, ix.Density)
	return nil
}

// ComputeGreen derives the green duration from the local demand estimate and
// the free capacity downstream. The base term grows linearly with density,
// the approach bonus rewards inbound platoons, and the clearance adjustment
// reacts to how well recent greens actually emptied the queue. The result is
// clamped to [MinGreen, MaxGreen]; when headroom is below the configured
// threshold the clamped value is pulled back toward MinGreen so the
// intersection stops discharging into a segment that cannot absorb it.
func (ix *Intersection) ComputeGreen(headroom float64) (time.Duration, Reason) {
	ratio := 0.0
	if ix.Capacity > 0 {
		ratio = math.Min(ix.Density/ix.Capacity, 1)
	}
	base := ix.cfg.MinGreen + time.Duration(ratio*float64(ix.cfg.MaxGreen-ix.cfg.MinGreen))

	bonus := time.Duration(ix.Approaching) * ix.cfg.ApproachGain
	if bonus > ix.cfg.ApproachCap {
		bonus = ix.cfg.ApproachCap
	}

	dur := clampDuration(base+bonus+ix.clearanceAdjustment(), ix.cfg.MinGreen, ix.cfg.MaxGreen)

	if threshold := ix.cfg.HeadroomThreshold; threshold > 0 && headroom < threshold {
		if headroom < 0 {
			headroom = 0
		}
		// Scale the span above MinGreen by the remaining headroom fraction:
		// zero headroom collapses to MinGreen, threshold headroom restores dur.
		held := ix.cfg.MinGreen + time.Duration(float64(dur-ix.cfg.MinGreen)*(headroom/threshold))
		return clampDuration(held, ix.cfg.MinGreen, ix.cfg.MaxGreen), ReasonDownstreamHold
	}

	return dur, ReasonNormal
}

// clearanceAdjustment nudges green duration based on how completely recent
// green cycles cleared the queue. It stays 0 until a full history window of
// completed cycles has been observed.
func (ix *Intersection) clearanceAdjustment() time.Duration {
	if len(ix.clearanceHistory) < ClearanceHistoryLength {
		return 0
	}
	var sum float64
	for _, r := range ix.clearanceHistory {
		sum += r
	}
	mean := sum / float64(len(ix.clearanceHistory))
	switch {
	case mean < LowClearanceRatio:
		return LowClearanceBoost
	case mean > HighClearanceRatio:
		return -HighClearanceTrim
	default:
		return 0
	}
}

// recordClearance captures the fraction of the entry queue discharged during
// the green cycle that just ended.
func (ix *Intersection) recordClearance() {
	if ix.greenEntryDensity <= 0 {
		return
	}
	cleared := ix.greenEntryDensity - ix.Density
	if cleared < 0 {
		cleared = 0
	}
	ratio := cleared / ix.greenEntryDensity
	ix.clearanceHistory = append(ix.clearanceHistory, ratio)
	if len(ix.clearanceHistory) > ClearanceHistoryLength {
		ix.clearanceHistory = ix.clearanceHistory[len(ix.clearanceHistory)-ClearanceHistoryLength:]
	}
	Diagf("clearance %s: entry=%.2f exit=%.2f ratio=%.2f", ix.ID, ix.greenEntryDensity, ix.Density, ratio)

	if adj := ix.clearanceAdjustment(); adj != ix.lastAdjustment {
		monitoring.Logf("[Clearance] Observed clearance regime change for intersection=%s: adjustment %s -> %s", ix.ID, ix.lastAdjustment, adj)
		ix.lastAdjustment = adj
	}
}

// assign applies this tick's arbitration result to the current phase and
// remembers the green to run on the next entry into GREEN. It reports whether
// the assignment itself forces an early transition (the new duration already
// expired when it was applied).
func (ix *Intersection) assign(green time.Duration, reason Reason, directive *Directive) (forced bool) {
	ix.pendingGreen = green
	ix.pendingReason = reason

	if directive != nil {
		ix.Reason = ReasonIncidentOverride
		ix.pendingReason = ReasonIncidentOverride
		switch directive.Action {
		case ActionForceRed:
			switch ix.Phase {
			case PhaseGreen:
				// Cut the green now; the fixed yellow still runs before red.
				forced = ix.Assigned > ix.Elapsed
				ix.Assigned = ix.Elapsed
			case PhaseYellow:
				ix.Assigned = ix.cfg.Yellow
			case PhaseRed:
				// Keep red from expiring while the directive stands.
				ix.Assigned = ix.Elapsed + ix.cfg.MaxGreen
			}
		case ActionExtendGreen:
			ix.pendingGreen = ix.cfg.MaxGreen
			switch ix.Phase {
			case PhaseGreen:
				ix.Assigned = ix.cfg.MaxGreen
			case PhaseYellow:
				ix.Assigned = ix.cfg.Yellow
			case PhaseRed:
				// Bring green forward; the cycle order still runs red -> green.
				forced = ix.Assigned > ix.Elapsed
				ix.Assigned = ix.Elapsed
			}
		case ActionHold:
			// Leave the current assignment untouched.
		}
		return forced
	}

	ix.Reason = reason
	switch ix.Phase {
	case PhaseGreen:
		forced = green < ix.Assigned && green <= ix.Elapsed
		ix.Assigned = green
	case PhaseYellow:
		ix.Assigned = ix.cfg.Yellow
	case PhaseRed:
		ix.Assigned = ix.cfg.MaxGreen
	}
	return forced
}

// Advance moves the phase clock forward by tick. On crossing the assigned
// duration the phase transitions in fixed cycle order and elapsed resets to
// zero, so at most one transition happens per tick and the elapsed-below-
// assigned invariant holds on return.
func (ix *Intersection) Advance(tick time.Duration) (transitioned bool, into Phase) {
	ix.Elapsed += tick
	if ix.Elapsed < ix.Assigned {
		return false, ix.Phase
	}

	from := ix.Phase
	ix.Phase = ix.Phase.Next()
	ix.Elapsed = 0

	switch ix.Phase {
	case PhaseGreen:
		ix.Assigned = ix.pendingGreen
		ix.Reason = ix.pendingReason
		ix.greenEntryDensity = ix.Density
	case PhaseYellow:
		ix.Assigned = ix.cfg.Yellow
		ix.recordClearance()
	case PhaseRed:
		ix.Assigned = ix.cfg.MaxGreen
	}
	if ix.Assigned <= 0 {
		ix.Assigned = ix.cfg.MinGreen
	}

	Opsf("phase %s: %s -> %s (assigned %s, %s)", ix.ID, from, ix.Phase, ix.Assigned, ix.Reason)
	return true, ix.Phase
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
