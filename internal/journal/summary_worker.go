package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nnikhil6/greenwave/internal/corridor"
)

// SummaryWorker periodically rolls recent phase_decisions up into
// per-intersection corridor_summaries rows. Designed to run every 15 minutes
// over the last 20 minutes (the overlap lets late writes land in a rerun).
type SummaryWorker struct {
	Journal  *Journal
	Interval time.Duration // how often to run (e.g., 15m)
	Window   time.Duration // lookback window (e.g., 20m)
	StopChan chan struct{}
}

func NewSummaryWorker(j *Journal) *SummaryWorker {
	return &SummaryWorker{
		Journal:  j,
		Interval: 15 * time.Minute,
		Window:   20 * time.Minute,
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *SummaryWorker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.RunOnce(context.Background()); err != nil {
					log.Printf("Summary worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *SummaryWorker) Stop() {
	close(w.StopChan)
}

// RunOnce rolls up the last w.Window and replaces any overlapping summaries.
func (w *SummaryWorker) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	return w.RunRange(ctx, now.Add(-w.Window), now)
}

// RunFullHistory rolls up the full journaled decision range in one window.
func (w *SummaryWorker) RunFullHistory(ctx context.Context) error {
	var start sql.NullInt64
	var end sql.NullInt64
	if err := w.Journal.QueryRowContext(ctx,
		`SELECT MIN(decided_at_ms), MAX(decided_at_ms) FROM phase_decisions`,
	).Scan(&start, &end); err != nil {
		return err
	}
	if !start.Valid || !end.Valid {
		log.Printf("Summary worker full-history run skipped (no decisions)")
		return nil
	}
	// End bound is exclusive; nudge past the last decision so it is included.
	return w.RunRange(ctx, time.UnixMilli(start.Int64), time.UnixMilli(end.Int64+1))
}

// intersectionRollup accumulates one intersection's decisions inside a window.
type intersectionRollup struct {
	densities []float64
	greens    []float64 // Assigned green durations, one sample per green entry
	holds     int64
	overrides int64
	count     int64
}

// RunRange rolls up decisions decided within [start, end) and replaces any
// summaries overlapping that window. Idempotent: rerunning the same range
// yields the same rows.
func (w *SummaryWorker) RunRange(ctx context.Context, start, end time.Time) error {
	startMS := start.UnixMilli()
	endMS := end.UnixMilli()

	tx, err := w.Journal.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means transaction was already committed/rolled back
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	// Delete summaries overlapping the window before inserting. This handles
	// reruns and window overlaps, preventing duplicates. We delete summaries
	// that:
	// 1. Start within the processing range, OR
	// 2. End within the processing range, OR
	// 3. Span the entire processing range
	deleteQuery := `
		DELETE FROM corridor_summaries
		WHERE (window_start_ms BETWEEN ? AND ?)
		   OR (window_end_ms BETWEEN ? AND ?)
		   OR (window_start_ms <= ? AND window_end_ms >= ?)
	`
	result, err := tx.ExecContext(ctx, deleteQuery,
		startMS, endMS, // summary starts in range
		startMS, endMS, // summary ends in range
		startMS, endMS, // summary spans entire range
	)
	if err != nil {
		return fmt.Errorf("failed to delete overlapping summaries: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("Summary worker: deleted %d overlapping summaries in range [%v, %v]",
			deleted, start.UTC(), end.UTC())
	}

	q := `
		SELECT intersection, phase, duration_ms, reason, changed, density
		FROM phase_decisions
		WHERE decided_at_ms >= ? AND decided_at_ms < ?
		ORDER BY decided_at_ms
	`
	rows, err := tx.QueryContext(ctx, q, startMS, endMS)
	if err != nil {
		return err
	}
	defer rows.Close()

	rollups := make(map[string]*intersectionRollup)
	for rows.Next() {
		var (
			intersection string
			phase        string
			durationMS   int64
			reason       string
			changed      bool
			density      float64
		)
		if err := rows.Scan(&intersection, &phase, &durationMS, &reason, &changed, &density); err != nil {
			return err
		}

		r := rollups[intersection]
		if r == nil {
			r = &intersectionRollup{}
			rollups[intersection] = r
		}

		r.count++
		r.densities = append(r.densities, density)
		// Changed green decisions mark green entries, one per cycle. Sampling
		// those keeps long greens from dominating the percentiles by tick count.
		if phase == string(corridor.PhaseGreen) && changed {
			r.greens = append(r.greens, float64(durationMS))
		}
		switch reason {
		case string(corridor.ReasonDownstreamHold):
			r.holds++
		case string(corridor.ReasonIncidentOverride):
			r.overrides++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(rollups) == 0 {
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corridor_summaries (
			window_start_ms, window_end_ms, intersection, decisions,
			mean_density, p50_green_ms, p85_green_ms, hold_count, override_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(rollups))
	for id := range rollups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := rollups[id]

		meanDensity := 0.0
		if len(r.densities) > 0 {
			meanDensity = stat.Mean(r.densities, nil)
		}

		var p50, p85 int64
		if len(r.greens) > 0 {
			sort.Float64s(r.greens)
			p50 = int64(stat.Quantile(0.5, stat.Empirical, r.greens, nil))
			p85 = int64(stat.Quantile(0.85, stat.Empirical, r.greens, nil))
		}

		if _, err := stmt.ExecContext(ctx,
			startMS, endMS, id, r.count, meanDensity, p50, p85, r.holds, r.overrides,
		); err != nil {
			return fmt.Errorf("failed to insert summary for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("Summary worker: rolled up %d intersections in range [%v, %v]",
		len(ids), start.UTC(), end.UTC())
	return nil
}

// SummaryRow is one journaled per-intersection rollup.
type SummaryRow struct {
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Intersection  string    `json:"intersection"`
	Decisions     int64     `json:"decisions"`
	MeanDensity   float64   `json:"mean_density"`
	P50GreenMS    int64     `json:"p50_green_ms"`
	P85GreenMS    int64     `json:"p85_green_ms"`
	HoldCount     int64     `json:"hold_count"`
	OverrideCount int64     `json:"override_count"`
}

// RecentSummaries returns rollups, newest window first. limit <= 0 selects
// the default page size.
func (j *Journal) RecentSummaries(limit int) ([]SummaryRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := j.Query(`
		SELECT window_start_ms, window_end_ms, intersection, decisions,
		       mean_density, p50_green_ms, p85_green_ms, hold_count, override_count
		FROM corridor_summaries
		ORDER BY window_start_ms DESC, intersection
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SummaryRow
	for rows.Next() {
		var (
			row         SummaryRow
			windowStart int64
			windowEnd   int64
		)
		if err := rows.Scan(
			&windowStart,
			&windowEnd,
			&row.Intersection,
			&row.Decisions,
			&row.MeanDensity,
			&row.P50GreenMS,
			&row.P85GreenMS,
			&row.HoldCount,
			&row.OverrideCount,
		); err != nil {
			return nil, err
		}
		row.WindowStart = time.UnixMilli(windowStart).UTC()
		row.WindowEnd = time.UnixMilli(windowEnd).UTC()
		summaries = append(summaries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}
