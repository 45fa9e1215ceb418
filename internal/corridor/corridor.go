package corridor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// IntersectionDef describes one junction at corridor construction time.
type IntersectionDef struct {
	ID       string
	Position int
	Capacity float64
}

// Corridor owns the ordered intersection sequence for one road segment.
// Insertion order is physical order; adjacency is fixed after construction.
// The tick goroutine mutates under the write lock, snapshots take the read
// lock, so API reads never observe a half-applied tick.
type Corridor struct {
	Name string

	mu   sync.RWMutex
	seq  []*Intersection
	byID map[string]*Intersection
	cfg  TimingConfig
}

// NewCorridor validates the definitions and builds the sequence. Positions
// must be contiguous from zero, ids unique, capacities positive; anything
// else is a ConfigError and the corridor refuses to start.
func NewCorridor(name string, defs []IntersectionDef, cfg TimingConfig) (*Corridor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, &ConfigError{Field: "intersections", Detail: "corridor must contain at least one intersection"}
	}

	ordered := make([]IntersectionDef, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	c := &Corridor{
		Name: name,
		seq:  make([]*Intersection, 0, len(ordered)),
		byID: make(map[string]*Intersection, len(ordered)),
		cfg:  cfg,
	}
	for i, def := range ordered {
		if def.Position != i {
			return nil, &ConfigError{
				Field:  "intersections",
				Detail: fmt.Sprintf("positions must be contiguous from 0, found %d at index %d", def.Position, i),
			}
		}
		if def.ID == "" {
			return nil, &ConfigError{Field: "intersections", Detail: fmt.Sprintf("empty id at position %d", i)}
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, &ConfigError{Field: "intersections", Detail: fmt.Sprintf("duplicate id %q", def.ID)}
		}
		if def.Capacity <= 0 {
			return nil, &ConfigError{Field: "intersections", Detail: fmt.Sprintf("capacity for %q must be positive", def.ID)}
		}
		ix := NewIntersection(def.ID, i, def.Capacity, cfg)
		c.seq = append(c.seq, ix)
		c.byID[def.ID] = ix
	}
	return c, nil
}

// Len returns the number of intersections in the corridor.
func (c *Corridor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seq)
}

// IDs returns the intersection ids in corridor order.
func (c *Corridor) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.seq))
	for i, ix := range c.seq {
		ids[i] = ix.ID
	}
	return ids
}

// Config returns the corridor-wide timing parameters.
func (c *Corridor) Config() TimingConfig {
	return c.cfg
}

// lookup resolves an intersection id without copying. Callers must hold the
// corridor lock.
func (c *Corridor) lookup(id string) (*Intersection, bool) {
	ix, ok := c.byID[id]
	return ix, ok
}

// IntersectionState is a point-in-time copy of one junction for readers
// outside the tick goroutine. Durations are reported in milliseconds to
// match the wire format of the reporting endpoints.
type IntersectionState struct {
	ID            string    `json:"id"`
	Position      int       `json:"position"`
	Phase         Phase     `json:"phase"`
	ElapsedMS     int64     `json:"elapsed_ms"`
	AssignedMS    int64     `json:"assigned_ms"`
	Reason        Reason    `json:"reason"`
	Density       float64   `json:"density"`
	Capacity      float64   `json:"capacity"`
	Approaching   int       `json:"approaching"`
	AvgSpeedMPS   float64   `json:"avg_speed_mps"`
	LastReadingAt time.Time `json:"last_reading_at"`
	ReadingCount  int64     `json:"reading_count"`
}

// Snapshot copies the live state of every intersection in corridor order.
func (c *Corridor) Snapshot() []IntersectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make([]IntersectionState, len(c.seq))
	for i, ix := range c.seq {
		states[i] = IntersectionState{
			ID:            ix.ID,
			Position:      ix.Position,
			Phase:         ix.Phase,
			ElapsedMS:     ix.Elapsed.Milliseconds(),
			AssignedMS:    ix.Assigned.Milliseconds(),
			Reason:        ix.Reason,
			Density:       ix.Density,
			Capacity:      ix.Capacity,
			Approaching:   ix.Approaching,
			AvgSpeedMPS:   ix.AvgSpeedMPS,
			LastReadingAt: ix.LastReadingAt,
			ReadingCount:  ix.ReadingCount,
		}
	}
	return states
}
