package journal

import (
	"time"

	"github.com/nnikhil6/greenwave/internal/corridor"
)

// IncidentRow is one retired incident event as journaled.
type IncidentRow struct {
	ID           string    `json:"id"`
	Intersection string    `json:"intersection"`
	Severity     float64   `json:"severity"`
	DeclaredAt   time.Time `json:"declared_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ClearedAt    time.Time `json:"cleared_at"`
	ClearCause   string    `json:"clear_cause"`
	UpdateCount  int64     `json:"update_count"`
}

// ArchiveIncident journals a retired incident event. The incident manager
// hands each cleared event over exactly once; re-archiving the same id
// overwrites the previous row.
func (j *Journal) ArchiveIncident(ev corridor.IncidentEvent) error {
	_, err := j.Exec(`
		INSERT OR REPLACE INTO incident_events (
			id, intersection, severity, declared_at_ms, updated_at_ms,
			cleared_at_ms, clear_cause, update_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Intersection,
		ev.Severity,
		ev.DeclaredAt.UnixMilli(),
		ev.UpdatedAt.UnixMilli(),
		ev.ClearedAt.UnixMilli(),
		string(ev.ClearCause),
		int64(ev.UpdateCount),
	)
	if err != nil {
		return err
	}
	return nil
}

// RecentIncidents returns journaled incidents, most recently declared first.
// limit <= 0 selects the default page size.
func (j *Journal) RecentIncidents(limit int) ([]IncidentRow, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := j.Query(`
		SELECT id, intersection, severity, declared_at_ms, updated_at_ms,
		       cleared_at_ms, clear_cause, update_count
		FROM incident_events
		ORDER BY declared_at_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []IncidentRow
	for rows.Next() {
		var (
			row        IncidentRow
			declaredAt int64
			updatedAt  int64
			clearedAt  int64
		)
		if err := rows.Scan(
			&row.ID,
			&row.Intersection,
			&row.Severity,
			&declaredAt,
			&updatedAt,
			&clearedAt,
			&row.ClearCause,
			&row.UpdateCount,
		); err != nil {
			return nil, err
		}
		row.DeclaredAt = time.UnixMilli(declaredAt).UTC()
		row.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		row.ClearedAt = time.UnixMilli(clearedAt).UTC()
		incidents = append(incidents, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return incidents, nil
}
