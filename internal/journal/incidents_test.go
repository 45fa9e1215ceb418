package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnikhil6/greenwave/internal/corridor"
)

func TestArchiveAndRecentIncidents(t *testing.T) {
	t.Parallel()

	j := newTestJournal(t)
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	first := corridor.IncidentEvent{
		ID:           "11111111-1111-1111-1111-111111111111",
		Intersection: "elm-2nd",
		Severity:     0.9,
		State:        corridor.IncidentCleared,
		DeclaredAt:   base,
		UpdatedAt:    base.Add(30 * time.Second),
		ClearedAt:    base.Add(time.Minute),
		ClearCause:   corridor.ClearExplicit,
		UpdateCount:  2,
	}
	second := corridor.IncidentEvent{
		ID:           "22222222-2222-2222-2222-222222222222",
		Intersection: "elm-3rd",
		Severity:     0.75,
		State:        corridor.IncidentCleared,
		DeclaredAt:   base.Add(5 * time.Minute),
		UpdatedAt:    base.Add(5 * time.Minute),
		ClearedAt:    base.Add(7 * time.Minute),
		ClearCause:   corridor.ClearTimeout,
	}

	require.NoError(t, j.ArchiveIncident(first))
	require.NoError(t, j.ArchiveIncident(second))

	incidents, err := j.RecentIncidents(10)
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	// Most recently declared first.
	assert.Equal(t, second.ID, incidents[0].ID)
	assert.Equal(t, "elm-3rd", incidents[0].Intersection)
	assert.Equal(t, "timeout", incidents[0].ClearCause)

	got := incidents[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "elm-2nd", got.Intersection)
	assert.Equal(t, 0.9, got.Severity)
	assert.True(t, got.DeclaredAt.Equal(first.DeclaredAt))
	assert.True(t, got.UpdatedAt.Equal(first.UpdatedAt))
	assert.True(t, got.ClearedAt.Equal(first.ClearedAt))
	assert.Equal(t, "explicit", got.ClearCause)
	assert.Equal(t, int64(2), got.UpdateCount)
}

func TestArchiveIncidentReplacesByID(t *testing.T) {
	t.Parallel()

	j := newTestJournal(t)
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	ev := corridor.IncidentEvent{
		ID:           "33333333-3333-3333-3333-333333333333",
		Intersection: "elm-2nd",
		Severity:     0.8,
		DeclaredAt:   base,
		UpdatedAt:    base,
		ClearedAt:    base.Add(time.Minute),
		ClearCause:   corridor.ClearExplicit,
	}
	require.NoError(t, j.ArchiveIncident(ev))

	ev.Severity = 0.95
	ev.UpdateCount = 3
	require.NoError(t, j.ArchiveIncident(ev))

	incidents, err := j.RecentIncidents(10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, 0.95, incidents[0].Severity)
	assert.Equal(t, int64(3), incidents[0].UpdateCount)
}

func TestRecentIncidentsEmpty(t *testing.T) {
	t.Parallel()

	j := newTestJournal(t)

	incidents, err := j.RecentIncidents(0)
	require.NoError(t, err)
	assert.Empty(t, incidents)
}
