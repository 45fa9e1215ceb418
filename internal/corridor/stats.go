package corridor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// LoopStats tracks control-loop counters with thread-safe operations.
// Window counters reset on each LogStats call; lifetime totals do not.
type LoopStats struct {
	mu                sync.Mutex
	tickCount         int64
	readingsApplied   int64
	readingsDropped   int64
	unknownIDs        int64
	overrideConflicts int64
	decisionsEmitted  int64
	lastReset         time.Time

	totals StatsTotals
}

// StatsTotals is a lifetime snapshot of the loop counters.
type StatsTotals struct {
	Ticks             int64 `json:"ticks"`
	ReadingsApplied   int64 `json:"readings_applied"`
	ReadingsDropped   int64 `json:"readings_dropped"`
	UnknownIDs        int64 `json:"unknown_ids"`
	OverrideConflicts int64 `json:"override_conflicts"`
	DecisionsEmitted  int64 `json:"decisions_emitted"`
}

// NewLoopStats creates a new LoopStats instance.
func NewLoopStats() *LoopStats {
	return &LoopStats{
		lastReset: time.Now(),
	}
}

// AddTick increments the tick count.
func (ls *LoopStats) AddTick() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.tickCount++
	ls.totals.Ticks++
}

// AddApplied increments the applied-reading count.
func (ls *LoopStats) AddApplied(n int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.readingsApplied += int64(n)
	ls.totals.ReadingsApplied += int64(n)
}

// AddDropped increments the dropped-record count.
func (ls *LoopStats) AddDropped(n int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.readingsDropped += int64(n)
	ls.totals.ReadingsDropped += int64(n)
}

// AddUnknown increments the unknown-intersection count.
func (ls *LoopStats) AddUnknown() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.unknownIDs++
	ls.totals.UnknownIDs++
}

// AddConflicts increments the override-conflict count.
func (ls *LoopStats) AddConflicts(n int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.overrideConflicts += int64(n)
	ls.totals.OverrideConflicts += int64(n)
}

// AddDecisions increments the emitted-decision count.
func (ls *LoopStats) AddDecisions(n int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.decisionsEmitted += int64(n)
	ls.totals.DecisionsEmitted += int64(n)
}

// Totals returns the lifetime counters.
func (ls *LoopStats) Totals() StatsTotals {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.totals
}

// GetAndReset returns the window counters and resets them.
func (ls *LoopStats) GetAndReset() (ticks, applied, dropped, unknown, conflicts, decisions int64, duration time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ls.lastReset)
	ticks = ls.tickCount
	applied = ls.readingsApplied
	dropped = ls.readingsDropped
	unknown = ls.unknownIDs
	conflicts = ls.overrideConflicts
	decisions = ls.decisionsEmitted

	ls.tickCount = 0
	ls.readingsApplied = 0
	ls.readingsDropped = 0
	ls.unknownIDs = 0
	ls.overrideConflicts = 0
	ls.decisionsEmitted = 0
	ls.lastReset = now

	return
}

// LogStats logs formatted loop statistics for the window since the last call.
func (ls *LoopStats) LogStats() {
	ticks, applied, dropped, unknown, conflicts, decisions, duration := ls.GetAndReset()
	if ticks == 0 && dropped == 0 {
		return
	}

	ticksPerSec := float64(ticks) / duration.Seconds()
	logMsg := fmt.Sprintf("Corridor stats: %.2f ticks/sec, %d readings applied, %d decisions", ticksPerSec, applied, decisions)
	if dropped > 0 || unknown > 0 {
		logMsg += fmt.Sprintf(", %d dropped (%d unknown id)", dropped+unknown, unknown)
	}
	if conflicts > 0 {
		logMsg += fmt.Sprintf(", %d override conflicts", conflicts)
	}
	log.Print(logMsg)
}
