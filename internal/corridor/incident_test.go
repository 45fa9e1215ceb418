package corridor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIncidentManager(t *testing.T, archive func(IncidentEvent)) *IncidentManager {
	t.Helper()
	cfg := IncidentConfig{SeverityThreshold: 0.7, Timeout: 2 * time.Minute}
	m, err := NewIncidentManager(cfg, []string{"a", "b", "c"}, archive)
	require.NoError(t, err)
	return m
}

func TestIncidentDeclaration(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	t.Run("signal above threshold becomes an event", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		res := m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.9, Timestamp: now}}, nil)
		require.Equal(t, 1, m.ActiveCount())
		assert.Zero(t, res.Dropped)

		events := m.Incidents()
		require.Len(t, events, 1)
		assert.NotEmpty(t, events[0].ID)
		assert.Equal(t, "b", events[0].Intersection)
		assert.Equal(t, IncidentActive, events[0].State)
		assert.Equal(t, now, events[0].DeclaredAt)

		// Affected intersection is forced red, its upstream neighbour
		// extends green to divert inflow.
		assert.Equal(t, ActionForceRed, res.Directives["b"].Action)
		assert.Equal(t, ActionExtendGreen, res.Directives["a"].Action)
		_, hasDownstream := res.Directives["c"]
		assert.False(t, hasDownstream)
	})

	t.Run("below threshold is ignored", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		res := m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.5, Timestamp: now}}, nil)
		assert.Zero(t, m.ActiveCount())
		assert.Empty(t, res.Directives)
		assert.Zero(t, res.Dropped)
	})

	t.Run("exact threshold severity qualifies", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.7, Timestamp: now}}, nil)
		assert.Equal(t, 1, m.ActiveCount())
	})

	t.Run("first intersection has no upstream to extend", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		res := m.Evaluate(now, []IncidentSignal{{Intersection: "a", Severity: 0.9, Timestamp: now}}, nil)
		assert.Equal(t, ActionForceRed, res.Directives["a"].Action)
		assert.Len(t, res.Directives, 1)
	})

	t.Run("unknown intersection is dropped", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		res := m.Evaluate(now, []IncidentSignal{{Intersection: "zz", Severity: 0.9, Timestamp: now}}, nil)
		assert.Equal(t, 1, res.Dropped)
		assert.Zero(t, m.ActiveCount())
	})

	t.Run("malformed signal is dropped", func(t *testing.T) {
		t.Parallel()
		m := testIncidentManager(t, nil)

		res := m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: -1, Timestamp: now}}, nil)
		assert.Equal(t, 1, res.Dropped)
		assert.Zero(t, m.ActiveCount())
	})
}

func TestIncidentRedeclaration(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := testIncidentManager(t, nil)

	m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.8, Timestamp: now}}, nil)
	first := m.Incidents()[0]

	later := now.Add(30 * time.Second)
	m.Evaluate(later, []IncidentSignal{{Intersection: "b", Severity: 0.95, Timestamp: later}}, nil)

	require.Equal(t, 1, m.ActiveCount())
	updated := m.Incidents()[0]
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, 0.95, updated.Severity)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, now, updated.DeclaredAt)
	assert.Equal(t, 1, updated.UpdateCount)
}

func TestIncidentDuplicateSignalSameBatch(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := testIncidentManager(t, nil)

	sig := IncidentSignal{Intersection: "b", Severity: 0.8, Timestamp: now}
	m.Evaluate(now, []IncidentSignal{sig, sig}, nil)

	require.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, 1, m.Incidents()[0].UpdateCount)
}

func TestIncidentExplicitClear(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	var archived []IncidentEvent
	m := testIncidentManager(t, func(ev IncidentEvent) { archived = append(archived, ev) })

	m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.9, Timestamp: now}}, nil)
	id := m.Incidents()[0].ID

	clearAt := now.Add(time.Minute)
	res := m.Evaluate(clearAt, nil, []ClearRequest{{IncidentID: id, At: clearAt}})

	assert.Zero(t, m.ActiveCount())
	assert.Empty(t, res.Directives)

	events := m.Incidents()
	require.Len(t, events, 1)
	assert.Equal(t, IncidentCleared, events[0].State)
	assert.Equal(t, ClearExplicit, events[0].ClearCause)
	assert.Equal(t, clearAt, events[0].ClearedAt)

	require.Len(t, archived, 1)
	assert.Equal(t, id, archived[0].ID)

	// Cleared is terminal: clearing again is rejected, nothing resurrects.
	res = m.Evaluate(clearAt.Add(time.Second), nil, []ClearRequest{{IncidentID: id}})
	assert.Equal(t, 1, res.Dropped)
	assert.Len(t, archived, 1)
}

func TestIncidentClearUnknownID(t *testing.T) {
	t.Parallel()
	m := testIncidentManager(t, nil)

	res := m.Evaluate(time.Now(), nil, []ClearRequest{{IncidentID: "nope"}})
	assert.Equal(t, 1, res.Dropped)
}

func TestIncidentTimeout(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	var archived []IncidentEvent
	m := testIncidentManager(t, func(ev IncidentEvent) { archived = append(archived, ev) })

	m.Evaluate(now, []IncidentSignal{{Intersection: "c", Severity: 0.9, Timestamp: now}}, nil)

	// One second short of the window: still active.
	res := m.Evaluate(now.Add(2*time.Minute-time.Second), nil, nil)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Len(t, res.Directives, 2)

	// Crossing the window retires it without an explicit clear.
	res = m.Evaluate(now.Add(2*time.Minute), nil, nil)
	assert.Zero(t, m.ActiveCount())
	assert.Empty(t, res.Directives)

	require.Len(t, archived, 1)
	assert.Equal(t, ClearTimeout, archived[0].ClearCause)
}

func TestIncidentTimeoutMeasuredFromLastUpdate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := testIncidentManager(t, nil)

	m.Evaluate(now, []IncidentSignal{{Intersection: "b", Severity: 0.8, Timestamp: now}}, nil)

	// A re-declaration 90s in pushes the expiry window forward.
	update := now.Add(90 * time.Second)
	m.Evaluate(update, []IncidentSignal{{Intersection: "b", Severity: 0.85, Timestamp: update}}, nil)

	m.Evaluate(now.Add(3*time.Minute), nil, nil)
	assert.Equal(t, 1, m.ActiveCount(), "declared-at must not drive expiry")

	m.Evaluate(update.Add(2*time.Minute), nil, nil)
	assert.Zero(t, m.ActiveCount())
}

func TestDirectivePrecedence(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := testIncidentManager(t, nil)

	// Incidents at b and c: b is both affected (force red) and upstream of c
	// (extend green). Force red must win and the conflict must be counted.
	res := m.Evaluate(now, []IncidentSignal{
		{Intersection: "b", Severity: 0.9, Timestamp: now},
		{Intersection: "c", Severity: 0.9, Timestamp: now},
	}, nil)

	assert.Equal(t, ActionForceRed, res.Directives["b"].Action)
	assert.Equal(t, ActionForceRed, res.Directives["c"].Action)
	assert.Equal(t, ActionExtendGreen, res.Directives["a"].Action)
	assert.Equal(t, 1, res.Conflicts)
}

func TestIncidentsListingOrder(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := testIncidentManager(t, nil)

	m.Evaluate(now, []IncidentSignal{
		{Intersection: "c", Severity: 0.9, Timestamp: now},
		{Intersection: "a", Severity: 0.8, Timestamp: now},
	}, nil)

	// Active events list in corridor order regardless of arrival order.
	events := m.Incidents()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Intersection)
	assert.Equal(t, "c", events[1].Intersection)

	// Clear the one at a; cleared events follow the active ones.
	id := events[0].ID
	m.Evaluate(now.Add(time.Minute), nil, []ClearRequest{{IncidentID: id}})

	events = m.Incidents()
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].Intersection)
	assert.Equal(t, IncidentActive, events[0].State)
	assert.Equal(t, "a", events[1].Intersection)
	assert.Equal(t, IncidentCleared, events[1].State)
}

func TestIncidentConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultIncidentConfig().Validate())

	bad := IncidentConfig{SeverityThreshold: -0.1, Timeout: time.Minute}
	var ce *ConfigError
	require.ErrorAs(t, bad.Validate(), &ce)
	assert.Equal(t, "incident_severity_threshold", ce.Field)

	bad = IncidentConfig{SeverityThreshold: 0.5, Timeout: 0}
	require.ErrorAs(t, bad.Validate(), &ce)
	assert.Equal(t, "incident_timeout_ms", ce.Field)
}
