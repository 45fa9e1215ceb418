// Package journal persists corridor activity to a local sqlite file: the
// full decision record of every tick, retired incident events, raw detector
// station lines, and periodic per-intersection rollups. The schema is managed
// by embedded migrations; Open applies them, OpenRaw leaves the file as-is
// for the migrate subcommand.
package journal

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Journal wraps the corridor's sqlite activity log.
type Journal struct {
	*sql.DB
}

// Open opens (creating if needed) the journal at path and applies any
// pending schema migrations.
func Open(path string) (*Journal, error) {
	j, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}
	if err := j.MigrateUp(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// OpenRaw opens the journal without touching the schema. Migration tooling
// uses it so status and baseline inspect the file exactly as it is on disk.
func OpenRaw(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Journal{db}, nil
}

// SensorLine is one raw payload received from a detector station, kept for
// replay and post-incident review.
type SensorLine struct {
	Station    string    `json:"station"`
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecordSensorLine appends one raw detector line to the journal.
func (j *Journal) RecordSensorLine(station, kind, payload string, receivedAt time.Time) error {
	_, err := j.Exec(
		"INSERT INTO sensor_lines (station, kind, payload, received_at_ms) VALUES (?, ?, ?, ?)",
		station, kind, payload, receivedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	return nil
}

// RecentSensorLines returns the most recently received raw lines, newest
// first. limit <= 0 selects the default page size.
func (j *Journal) RecentSensorLines(limit int) ([]SensorLine, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	// rowid breaks same-millisecond ties so bursts come back in arrival order.
	rows, err := j.Query(
		"SELECT station, kind, payload, received_at_ms FROM sensor_lines ORDER BY received_at_ms DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SensorLine
	for rows.Next() {
		var (
			station    string
			kind       string
			payload    string
			receivedAt int64
		)
		if err := rows.Scan(&station, &kind, &payload, &receivedAt); err != nil {
			return nil, err
		}
		lines = append(lines, SensorLine{
			Station:    station,
			Kind:       kind,
			Payload:    payload,
			ReceivedAt: time.UnixMilli(receivedAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
