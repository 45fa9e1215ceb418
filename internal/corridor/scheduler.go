package corridor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nnikhil6/greenwave/internal/timeutil"
)

// DecisionSink receives each tick's complete decision set. Sinks run on the
// tick goroutine and must hand off quickly; anything that can block belongs
// behind a buffered writer.
type DecisionSink interface {
	EmitDecisions(decisions []PhaseDecision)
}

// DecisionSinkFunc adapts a function to the DecisionSink interface.
type DecisionSinkFunc func(decisions []PhaseDecision)

// EmitDecisions calls f.
func (f DecisionSinkFunc) EmitDecisions(decisions []PhaseDecision) { f(decisions) }

// Loop periodically re-evaluates one corridor at a fixed tick interval. Each
// tick drains the inbox snapshot, runs the coordination pass, and fans the
// decision set out to the sinks. Ticks never overlap; stop requests are
// honoured between ticks so the corridor is always left fully resolved.
type Loop struct {
	Interval time.Duration

	coord *Coordinator
	inbox *Inbox
	clock timeutil.Clock
	sinks []DecisionSink

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a control loop for the coordinator. A nil clock selects the
// real clock.
func NewLoop(interval time.Duration, coord *Coordinator, inbox *Inbox, clock timeutil.Clock, sinks ...DecisionSink) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		Interval: interval,
		coord:    coord,
		inbox:    inbox,
		clock:    clock,
		sinks:    sinks,
	}
}

// Inbox returns the loop's intake queue for producers.
func (l *Loop) Inbox() *Inbox {
	return l.inbox
}

// Run executes the tick loop until the context is cancelled or Stop is
// called. It returns an error if the loop is already running.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("control loop already running")
	}
	l.running = true
	l.stopped = false
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		close(l.doneCh)
	}()

	Opsf("control loop started: interval=%s intersections=%d", l.Interval, l.coord.Corridor().Len())

	ticker := l.clock.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			Opsf("control loop stopping: %v", ctx.Err())
			return ctx.Err()
		case <-l.stopCh:
			Opsf("control loop stopped")
			return nil
		case <-ticker.C():
			l.RunTick()
		}
	}
}

// Stop requests a cooperative stop and waits for the current tick to finish.
// Safe to call when the loop never started.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
	doneCh := l.doneCh
	l.mu.Unlock()

	<-doneCh
}

// RunTick executes exactly one tick: drain, coordinate, emit. Exposed so
// tools and tests can step the corridor without the ticker.
func (l *Loop) RunTick() []PhaseDecision {
	started := l.clock.Now()
	readings, signals, clears := l.inbox.Drain()
	decisions := l.coord.Tick(started, l.Interval, readings, signals, clears)
	for _, sink := range l.sinks {
		sink.EmitDecisions(decisions)
	}
	Diagf("tick %d complete: %d readings, %d signals, %d decisions in %s",
		decisions[0].Tick, len(readings), len(signals), len(decisions), l.clock.Since(started))
	return decisions
}
