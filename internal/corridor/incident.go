package corridor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IncidentState represents the lifecycle state of an incident event.
type IncidentState string

const (
	IncidentActive  IncidentState = "active"  // Directives in force every tick
	IncidentCleared IncidentState = "cleared" // Terminal; removed from arbitration
)

// ClearCause records what retired an incident.
type ClearCause string

const (
	ClearExplicit ClearCause = "explicit" // Operator or detector clear signal
	ClearTimeout  ClearCause = "timeout"  // No clear arrived within the configured window
)

// DefaultClearedRetention is how many cleared incidents stay listable in memory.
const DefaultClearedRetention = 50

// IncidentEvent is one detected incident at one intersection. At most one
// active event exists per intersection; re-declarations fold into it.
type IncidentEvent struct {
	ID           string        `json:"id"`
	Intersection string        `json:"intersection"`
	Severity     float64       `json:"severity"`
	State        IncidentState `json:"state"`
	DeclaredAt   time.Time     `json:"declared_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ClearedAt    time.Time     `json:"cleared_at,omitempty"`
	ClearCause   ClearCause    `json:"clear_cause,omitempty"`
	UpdateCount  int           `json:"update_count"`
}

// IncidentConfig holds the detection and expiry parameters.
type IncidentConfig struct {
	SeverityThreshold float64       // Raw signals below this never become events
	Timeout           time.Duration // Active incidents expire this long after their last update
}

// DefaultIncidentConfig returns the stock incident parameters.
func DefaultIncidentConfig() IncidentConfig {
	return IncidentConfig{
		SeverityThreshold: 0.7,
		Timeout:           2 * time.Minute,
	}
}

// Validate checks the incident parameters for structural errors.
func (c IncidentConfig) Validate() error {
	if c.SeverityThreshold < 0 {
		return &ConfigError{Field: "incident_severity_threshold", Detail: "must not be negative"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "incident_timeout_ms", Detail: "must be positive"}
	}
	return nil
}

// IncidentManager thresholds raw signals into incident events and derives the
// override directives the coordinator consults each tick. It knows the
// corridor only by id and position; it never touches intersection state.
type IncidentManager struct {
	cfg       IncidentConfig
	positions map[string]int // Intersection id -> corridor position
	order     []string       // Ids in corridor order

	mu      sync.RWMutex
	active  map[string]*IncidentEvent // Keyed by intersection id
	cleared []IncidentEvent           // Most recent last, bounded

	archive func(IncidentEvent) // Sink for cleared events, may be nil
}

// NewIncidentManager builds a manager for the given corridor ordering.
// archive, when non-nil, receives every cleared event exactly once.
func NewIncidentManager(cfg IncidentConfig, corridorIDs []string, archive func(IncidentEvent)) (*IncidentManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(corridorIDs) == 0 {
		return nil, &ConfigError{Field: "intersections", Detail: "incident manager needs a non-empty corridor"}
	}
	positions := make(map[string]int, len(corridorIDs))
	for i, id := range corridorIDs {
		positions[id] = i
	}
	return &IncidentManager{
		cfg:       cfg,
		positions: positions,
		order:     append([]string(nil), corridorIDs...),
		active:    make(map[string]*IncidentEvent),
		archive:   archive,
	}, nil
}

// EvalResult summarises one tick's incident evaluation.
type EvalResult struct {
	Directives map[string]Directive
	Dropped    int // Signals rejected as malformed or unknown
	Conflicts  int // Contradictory directives resolved by precedence
}

// Evaluate applies pending clear requests, expires stale incidents, folds in
// this tick's raw signals, and rebuilds the directive table. It runs on the
// tick goroutine; producers never call it.
func (m *IncidentManager) Evaluate(now time.Time, signals []IncidentSignal, clears []ClearRequest) EvalResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := EvalResult{Directives: make(map[string]Directive)}

	for _, cr := range clears {
		if err := m.clearByID(cr.IncidentID, now, ClearExplicit); err != nil {
			Diagf("incident clear %s: %v", cr.IncidentID, err)
			res.Dropped++
		}
	}

	for id, ev := range m.active {
		if now.Sub(ev.UpdatedAt) >= m.cfg.Timeout {
			m.retire(id, now, ClearTimeout)
		}
	}

	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			Diagf("incident signal dropped: %v", err)
			res.Dropped++
			continue
		}
		if _, known := m.positions[sig.Intersection]; !known {
			Diagf("incident signal dropped: %v: %s", ErrUnknownIntersection, sig.Intersection)
			res.Dropped++
			continue
		}
		if sig.Severity < m.cfg.SeverityThreshold {
			Tracef("incident signal below threshold at %s: %.2f < %.2f", sig.Intersection, sig.Severity, m.cfg.SeverityThreshold)
			continue
		}

		at := sig.Timestamp
		if at.IsZero() {
			at = now
		}
		if ev, ok := m.active[sig.Intersection]; ok {
			ev.Severity = sig.Severity
			ev.UpdatedAt = at
			ev.UpdateCount++
			Diagf("incident %s updated at %s: severity=%.2f", ev.ID, ev.Intersection, ev.Severity)
			continue
		}
		ev := &IncidentEvent{
			ID:           uuid.NewString(),
			Intersection: sig.Intersection,
			Severity:     sig.Severity,
			State:        IncidentActive,
			DeclaredAt:   at,
			UpdatedAt:    at,
		}
		m.active[sig.Intersection] = ev
		Opsf("incident %s declared at %s: severity=%.2f", ev.ID, ev.Intersection, ev.Severity)
	}

	// Rebuild directives: the affected intersection stops discharging, its
	// immediate upstream neighbour extends green to divert inflow.
	for _, ev := range m.active {
		pos := m.positions[ev.Intersection]
		res.Conflicts += m.merge(res.Directives, ev.Intersection, Directive{Action: ActionForceRed, IncidentID: ev.ID})
		if pos > 0 {
			upstream := m.order[pos-1]
			res.Conflicts += m.merge(res.Directives, upstream, Directive{Action: ActionExtendGreen, IncidentID: ev.ID})
		}
	}
	return res
}

// merge installs a directive, resolving contradictions by precedence.
// Returns 1 when a conflict was resolved, 0 otherwise.
func (m *IncidentManager) merge(directives map[string]Directive, id string, d Directive) int {
	existing, ok := directives[id]
	if !ok {
		directives[id] = d
		return 0
	}
	if existing.Action == d.Action {
		return 0
	}
	if d.Action.precedence() > existing.Action.precedence() {
		directives[id] = d
	}
	Diagf("%v at %s: %s beats %s", ErrOverrideConflict, id, directives[id].Action, lowerPrecedence(existing.Action, d.Action))
	return 1
}

func lowerPrecedence(a, b DirectiveAction) DirectiveAction {
	if a.precedence() < b.precedence() {
		return a
	}
	return b
}

// clearByID retires the active incident carrying the given event id.
func (m *IncidentManager) clearByID(incidentID string, now time.Time, cause ClearCause) error {
	for id, ev := range m.active {
		if ev.ID == incidentID {
			m.retire(id, now, cause)
			return nil
		}
	}
	return fmt.Errorf("no active incident with id %s", incidentID)
}

// retire transitions an active incident to cleared, archives it, and keeps it
// listable for a while. Cleared is terminal.
func (m *IncidentManager) retire(intersectionID string, now time.Time, cause ClearCause) {
	ev, ok := m.active[intersectionID]
	if !ok {
		return
	}
	delete(m.active, intersectionID)

	ev.State = IncidentCleared
	ev.ClearedAt = now
	ev.ClearCause = cause
	m.cleared = append(m.cleared, *ev)
	if len(m.cleared) > DefaultClearedRetention {
		m.cleared = m.cleared[len(m.cleared)-DefaultClearedRetention:]
	}
	if m.archive != nil {
		m.archive(*ev)
	}
	Opsf("incident %s cleared at %s (%s) after %s", ev.ID, ev.Intersection, cause, now.Sub(ev.DeclaredAt))
}

// ActiveCount returns the number of active incidents.
func (m *IncidentManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Incidents lists active incidents in corridor order followed by the most
// recently cleared ones, newest first.
func (m *IncidentManager) Incidents() []IncidentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]IncidentEvent, 0, len(m.active)+len(m.cleared))
	for _, id := range m.order {
		if ev, ok := m.active[id]; ok {
			out = append(out, *ev)
		}
	}
	for i := len(m.cleared) - 1; i >= 0; i-- {
		out = append(out, m.cleared[i])
	}
	return out
}
