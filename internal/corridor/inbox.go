package corridor

import "sync"

// DefaultInboxCapacity bounds how many queued records an inbox accepts
// between ticks before producers see ErrInboxFull.
const DefaultInboxCapacity = 1024

// Inbox is the intake queue for one corridor. Producers post from any
// goroutine; the scheduler drains a full snapshot at the start of each tick,
// so a tick never observes a partially updated queue. Posting never blocks:
// when the bound is hit the record is rejected and the producer decides
// whether that matters.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	readings []SensorReading
	signals  []IncidentSignal
	clears   []ClearRequest
}

// NewInbox creates an inbox holding at most capacity queued records across
// all three record kinds. A non-positive capacity selects the default.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{capacity: capacity}
}

func (in *Inbox) queued() int {
	return len(in.readings) + len(in.signals) + len(in.clears)
}

// PostReading enqueues one sensor reading for the next tick.
func (in *Inbox) PostReading(r SensorReading) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.queued() >= in.capacity {
		return ErrInboxFull
	}
	in.readings = append(in.readings, r)
	return nil
}

// PostIncident enqueues one raw incident signal for the next tick.
func (in *Inbox) PostIncident(s IncidentSignal) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.queued() >= in.capacity {
		return ErrInboxFull
	}
	in.signals = append(in.signals, s)
	return nil
}

// PostClear enqueues one incident clear request for the next tick.
func (in *Inbox) PostClear(c ClearRequest) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.queued() >= in.capacity {
		return ErrInboxFull
	}
	in.clears = append(in.clears, c)
	return nil
}

// Drain atomically takes everything queued since the last drain. The returned
// slices are owned by the caller; the inbox starts empty again.
func (in *Inbox) Drain() ([]SensorReading, []IncidentSignal, []ClearRequest) {
	in.mu.Lock()
	defer in.mu.Unlock()
	readings, signals, clears := in.readings, in.signals, in.clears
	in.readings, in.signals, in.clears = nil, nil, nil
	return readings, signals, clears
}

// Queued returns how many records are waiting for the next tick.
func (in *Inbox) Queued() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queued()
}
