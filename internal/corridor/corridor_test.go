package corridor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefs() []IntersectionDef {
	return []IntersectionDef{
		{ID: "elm-1st", Position: 0, Capacity: 10},
		{ID: "elm-2nd", Position: 1, Capacity: 10},
		{ID: "elm-3rd", Position: 2, Capacity: 10},
	}
}

func TestNewCorridor(t *testing.T) {
	t.Parallel()

	t.Run("orders intersections by position", func(t *testing.T) {
		t.Parallel()
		// Definitions arrive shuffled; the corridor sorts them.
		defs := []IntersectionDef{
			{ID: "c", Position: 2, Capacity: 5},
			{ID: "a", Position: 0, Capacity: 5},
			{ID: "b", Position: 1, Capacity: 5},
		}
		c, err := NewCorridor("elm", defs, testTiming())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, c.IDs())
		assert.Equal(t, 3, c.Len())
	})

	t.Run("first intersection starts green, rest red", func(t *testing.T) {
		t.Parallel()
		c, err := NewCorridor("elm", testDefs(), testTiming())
		require.NoError(t, err)

		states := c.Snapshot()
		require.Len(t, states, 3)
		assert.Equal(t, PhaseGreen, states[0].Phase)
		assert.Equal(t, PhaseRed, states[1].Phase)
		assert.Equal(t, PhaseRed, states[2].Phase)
	})

	t.Run("rejects empty corridor", func(t *testing.T) {
		t.Parallel()
		_, err := NewCorridor("elm", nil, testTiming())
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "intersections", ce.Field)
	})

	t.Run("rejects position gaps", func(t *testing.T) {
		t.Parallel()
		defs := []IntersectionDef{
			{ID: "a", Position: 0, Capacity: 5},
			{ID: "b", Position: 2, Capacity: 5},
		}
		_, err := NewCorridor("elm", defs, testTiming())
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		t.Parallel()
		defs := []IntersectionDef{
			{ID: "a", Position: 0, Capacity: 5},
			{ID: "a", Position: 1, Capacity: 5},
		}
		_, err := NewCorridor("elm", defs, testTiming())
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("rejects non-positive capacity", func(t *testing.T) {
		t.Parallel()
		defs := []IntersectionDef{{ID: "a", Position: 0, Capacity: 0}}
		_, err := NewCorridor("elm", defs, testTiming())
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("rejects invalid timing", func(t *testing.T) {
		t.Parallel()
		cfg := testTiming()
		cfg.SmoothingAlpha = 1.5
		_, err := NewCorridor("elm", testDefs(), cfg)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "smoothing_alpha", ce.Field)
		assert.Contains(t, err.Error(), "smoothing_alpha")
	})
}

func TestSnapshotCopiesState(t *testing.T) {
	t.Parallel()

	c, err := NewCorridor("elm", testDefs(), testTiming())
	require.NoError(t, err)

	c.mu.Lock()
	ix, ok := c.lookup("elm-2nd")
	require.True(t, ok)
	require.NoError(t, ix.UpdateDensity(SensorReading{Intersection: "elm-2nd", Count: 6, Approaching: 2}))
	c.mu.Unlock()

	states := c.Snapshot()
	assert.InDelta(t, 3.0, states[1].Density, 1e-9)
	assert.Equal(t, 2, states[1].Approaching)
	assert.Equal(t, int64(1), states[1].ReadingCount)

	// Mutating the snapshot must not touch the corridor.
	states[1].Density = 99
	assert.InDelta(t, 3.0, c.Snapshot()[1].Density, 1e-9)
}
