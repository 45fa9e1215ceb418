package corridor

import (
	"math"
	"time"
)

// Coordinator drives one corridor's per-tick arbitration: it folds queued
// sensor readings into the intersections, consults the incident manager for
// overrides, then walks the corridor downstream-to-upstream assigning phase
// durations. One Coordinator serves one Corridor; ticks are strictly
// sequential.
type Coordinator struct {
	corridor  *Corridor
	incidents *IncidentManager
	stats     *LoopStats
	tickSeq   uint64
}

// NewCoordinator wires a coordinator to its corridor and incident manager.
func NewCoordinator(c *Corridor, im *IncidentManager, stats *LoopStats) *Coordinator {
	if stats == nil {
		stats = NewLoopStats()
	}
	return &Coordinator{corridor: c, incidents: im, stats: stats}
}

// Stats exposes the loop counters shared with the scheduler and API.
func (co *Coordinator) Stats() *LoopStats {
	return co.stats
}

// Incidents exposes the incident manager for intake and listing.
func (co *Coordinator) Incidents() *IncidentManager {
	return co.incidents
}

// Corridor exposes the owned corridor for snapshots.
func (co *Coordinator) Corridor() *Corridor {
	return co.corridor
}

// Tick runs one full coordination pass and returns the tick's decision set,
// one immutable decision per intersection in corridor order. Malformed input
// never aborts the pass: bad records are dropped, counted, and the tick
// completes.
func (co *Coordinator) Tick(now time.Time, tickDelta time.Duration, readings []SensorReading, signals []IncidentSignal, clears []ClearRequest) []PhaseDecision {
	co.tickSeq++
	co.stats.AddTick()

	latest := dedupeReadings(readings)

	c := co.corridor
	c.mu.Lock()
	applied := 0
	for _, r := range latest {
		ix, ok := c.lookup(r.Intersection)
		if !ok {
			Diagf("reading dropped: %v: %s", ErrUnknownIntersection, r.Intersection)
			co.stats.AddUnknown()
			continue
		}
		if err := ix.UpdateDensity(r); err != nil {
			Diagf("reading dropped: %v", err)
			co.stats.AddDropped(1)
			continue
		}
		applied++
		if r.Incident {
			signals = append(signals, IncidentSignal{
				Intersection: r.Intersection,
				Severity:     r.Severity,
				Timestamp:    r.Timestamp,
			})
		}
	}
	c.mu.Unlock()
	co.stats.AddApplied(applied)

	res := co.incidents.Evaluate(now, signals, clears)
	co.stats.AddDropped(res.Dropped)
	co.stats.AddConflicts(res.Conflicts)

	c.mu.Lock()
	defer c.mu.Unlock()

	decisions := make([]PhaseDecision, len(c.seq))
	// Walk downstream-to-upstream so every headroom computation sees the
	// downstream neighbour's state as updated by this same tick.
	for i := len(c.seq) - 1; i >= 0; i-- {
		ix := c.seq[i]

		headroom := math.Inf(1)
		if i+1 < len(c.seq) {
			next := c.seq[i+1]
			headroom = next.Capacity - next.Density
		}

		green, reason := ix.ComputeGreen(headroom)

		var directive *Directive
		if d, ok := res.Directives[ix.ID]; ok {
			directive = &d
		}

		forced := ix.assign(green, reason, directive)
		transitioned, into := ix.Advance(tickDelta)

		decisions[i] = PhaseDecision{
			Intersection: ix.ID,
			Tick:         co.tickSeq,
			Phase:        ix.Phase,
			Duration:     ix.Assigned,
			Reason:       ix.Reason,
			Density:      ix.Density,
			Changed:      forced || (transitioned && into == PhaseGreen),
			DecidedAt:    now,
		}

		Diagf("tick %d %s: phase=%s assigned=%s elapsed=%s reason=%s headroom=%.1f density=%.2f",
			co.tickSeq, ix.ID, ix.Phase, ix.Assigned, ix.Elapsed, ix.Reason, headroom, ix.Density)
	}

	co.stats.AddDecisions(len(decisions))
	return decisions
}

// dedupeReadings keeps the most recent reading per intersection, by
// timestamp, with later arrivals winning timestamp ties. Applying the same
// reading twice in one batch is therefore the same as applying it once.
func dedupeReadings(readings []SensorReading) []SensorReading {
	if len(readings) <= 1 {
		return readings
	}
	latest := make(map[string]SensorReading, len(readings))
	order := make([]string, 0, len(readings))
	for _, r := range readings {
		prev, seen := latest[r.Intersection]
		if !seen {
			order = append(order, r.Intersection)
			latest[r.Intersection] = r
			continue
		}
		if !r.Timestamp.Before(prev.Timestamp) {
			latest[r.Intersection] = r
		}
	}
	out := make([]SensorReading, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
