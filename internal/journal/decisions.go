package journal

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nnikhil6/greenwave/internal/corridor"
)

// DecisionRow is one journaled arbitration outcome.
type DecisionRow struct {
	Tick         int64     `json:"tick"`
	Intersection string    `json:"intersection"`
	Phase        string    `json:"phase"`
	DurationMS   int64     `json:"duration_ms"`
	Reason       string    `json:"reason"`
	Changed      bool      `json:"changed"`
	Density      float64   `json:"density"`
	DecidedAt    time.Time `json:"decided_at"`
}

// InsertDecisions appends one tick's decision set in a single transaction.
func (j *Journal) InsertDecisions(decisions []corridor.PhaseDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := j.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means transaction was already committed/rolled back
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO phase_decisions (
			tick, intersection, phase, duration_ms, reason, changed, density, decided_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range decisions {
		_, err := stmt.Exec(
			int64(d.Tick),
			d.Intersection,
			string(d.Phase),
			d.Duration.Milliseconds(),
			string(d.Reason),
			d.Changed,
			d.Density,
			d.DecidedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert decision for %s: %w", d.Intersection, err)
		}
	}

	return tx.Commit()
}

// RecentDecisions returns the latest journaled decisions, newest first.
// limit <= 0 selects the default page size.
func (j *Journal) RecentDecisions(limit int) ([]DecisionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := j.Query(`
		SELECT tick, intersection, phase, duration_ms, reason, changed, density, decided_at_ms
		FROM phase_decisions
		ORDER BY decided_at_ms DESC, tick DESC, intersection
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// DecisionsBetween returns decisions decided within [start, end), oldest
// first. Intersections interleave in tick order.
func (j *Journal) DecisionsBetween(start, end time.Time) ([]DecisionRow, error) {
	rows, err := j.Query(`
		SELECT tick, intersection, phase, duration_ms, reason, changed, density, decided_at_ms
		FROM phase_decisions
		WHERE decided_at_ms >= ? AND decided_at_ms < ?
		ORDER BY decided_at_ms, tick, intersection`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]DecisionRow, error) {
	var decisions []DecisionRow
	for rows.Next() {
		var (
			d         DecisionRow
			decidedAt int64
		)
		if err := rows.Scan(
			&d.Tick,
			&d.Intersection,
			&d.Phase,
			&d.DurationMS,
			&d.Reason,
			&d.Changed,
			&d.Density,
			&decidedAt,
		); err != nil {
			return nil, err
		}
		d.DecidedAt = time.UnixMilli(decidedAt).UTC()
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return decisions, nil
}

// WriteDecisionsCSV streams the decisions within [start, end) as CSV, one
// header row then one row per decision.
func (j *Journal) WriteDecisionsCSV(w io.Writer, start, end time.Time) error {
	decisions, err := j.DecisionsBetween(start, end)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"tick", "intersection", "phase", "duration_ms", "reason", "changed", "density", "decided_at",
	}); err != nil {
		return err
	}

	for _, d := range decisions {
		record := []string{
			strconv.FormatInt(d.Tick, 10),
			d.Intersection,
			d.Phase,
			strconv.FormatInt(d.DurationMS, 10),
			d.Reason,
			strconv.FormatBool(d.Changed),
			strconv.FormatFloat(d.Density, 'f', -1, 64),
			d.DecidedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// DecisionWriter journals each tick's decision set off the tick goroutine.
// EmitDecisions never blocks; when the queue is saturated the oldest batch
// is dropped so a slow disk degrades history rather than signal timing.
type DecisionWriter struct {
	journal *Journal
	queue   chan []corridor.PhaseDecision

	StopChan chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	written int64
	dropped int64
}

// DefaultWriterQueueDepth bounds how many undrained tick batches the writer
// holds before dropping the oldest.
const DefaultWriterQueueDepth = 256

// NewDecisionWriter creates a writer journaling into j. queueDepth <= 0
// selects the default.
func NewDecisionWriter(j *Journal, queueDepth int) *DecisionWriter {
	if queueDepth <= 0 {
		queueDepth = DefaultWriterQueueDepth
	}
	return &DecisionWriter{
		journal:  j,
		queue:    make(chan []corridor.PhaseDecision, queueDepth),
		StopChan: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// EmitDecisions implements corridor.DecisionSink. The batch is copied before
// queueing; sinks must not hold the coordinator's slice across ticks.
func (w *DecisionWriter) EmitDecisions(decisions []corridor.PhaseDecision) {
	if len(decisions) == 0 {
		return
	}

	batch := make([]corridor.PhaseDecision, len(decisions))
	copy(batch, decisions)

	for {
		select {
		case w.queue <- batch:
			return
		default:
		}
		select {
		case <-w.queue:
			w.mu.Lock()
			w.dropped++
			w.mu.Unlock()
		default:
		}
	}
}

// Start runs the write loop in a goroutine. Calling Start twice is a no-op.
func (w *DecisionWriter) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.doneCh)
		for {
			select {
			case batch := <-w.queue:
				w.writeBatch(batch)
			case <-w.StopChan:
				// Drain what is already queued before handing the journal back.
				for {
					select {
					case batch := <-w.queue:
						w.writeBatch(batch)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop requests the writer to stop and waits for the remaining queue to be
// flushed. Safe to call more than once, or without Start.
func (w *DecisionWriter) Stop() {
	w.stopOnce.Do(func() { close(w.StopChan) })

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.doneCh
	}
}

func (w *DecisionWriter) writeBatch(batch []corridor.PhaseDecision) {
	if err := w.journal.InsertDecisions(batch); err != nil {
		log.Printf("journal: decision write failed: %v", err)
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.written += int64(len(batch))
	w.mu.Unlock()
}

// Written returns how many decisions have been journaled.
func (w *DecisionWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Dropped returns how many batches were lost to saturation or write errors.
func (w *DecisionWriter) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
