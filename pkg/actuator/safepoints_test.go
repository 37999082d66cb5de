package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable([]SafePoint{
		{FrequencyMHz: 350, VoltageMV: 700},
		{FrequencyMHz: 800, VoltageMV: 800},
		{FrequencyMHz: 2000, VoltageMV: 1000},
	})
	require.NoError(t, err)
	return tbl
}

func TestNewTableRejectsEmpty(t *testing.T) {
	_, err := NewTable(nil)
	assert.Error(t, err)
}

func TestNewTableRejectsDuplicateFrequency(t *testing.T) {
	_, err := NewTable([]SafePoint{
		{FrequencyMHz: 500, VoltageMV: 700},
		{FrequencyMHz: 500, VoltageMV: 750},
	})
	assert.ErrorContains(t, err, "multiple supposedly safe voltages")
}

func TestNewTableRejectsNonMonotonicVoltage(t *testing.T) {
	_, err := NewTable([]SafePoint{
		{FrequencyMHz: 350, VoltageMV: 900},
		{FrequencyMHz: 800, VoltageMV: 800},
	})
	assert.ErrorContains(t, err, "higher than")
}

func TestNewTableSortsUnorderedInput(t *testing.T) {
	tbl, err := NewTable([]SafePoint{
		{FrequencyMHz: 2000, VoltageMV: 1000},
		{FrequencyMHz: 350, VoltageMV: 700},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(350), tbl.MinFrequencyMHz())
	assert.Equal(t, uint16(2000), tbl.MaxFrequencyMHz())
}

func TestVoltageForRangeExactMatch(t *testing.T) {
	tbl := defaultTable(t)
	v, err := tbl.VoltageForRange(800)
	require.NoError(t, err)
	assert.Equal(t, uint16(800), v)
}

func TestVoltageForRangePicksSmallestGreaterOrEqual(t *testing.T) {
	tbl := defaultTable(t)
	v, err := tbl.VoltageForRange(600)
	require.NoError(t, err)
	assert.Equal(t, uint16(800), v)
}

func TestVoltageForRangeBeyondMaxErrors(t *testing.T) {
	tbl := defaultTable(t)
	_, err := tbl.VoltageForRange(2200)
	assert.ErrorIs(t, err, ErrBeyondMaxSafePoint)
}

func TestVoltageInterpolatedClampsBelowMin(t *testing.T) {
	tbl := defaultTable(t)
	assert.Equal(t, uint16(700), tbl.VoltageInterpolated(100))
}

func TestVoltageInterpolatedClampsAboveMax(t *testing.T) {
	tbl := defaultTable(t)
	assert.Equal(t, uint16(1000), tbl.VoltageInterpolated(3000))
}

func TestVoltageInterpolatedMidpointIgnoresIntermediatePoints(t *testing.T) {
	tbl := defaultTable(t)
	// Linear between (350, 700) and (2000, 1000) only; the (800, 800)
	// intermediate safe point is not consulted.
	freq := uint16(350 + (2000-350)/2)
	got := tbl.VoltageInterpolated(freq)
	assert.InDelta(t, 850, int(got), 2)
}

func TestClampToEngineRangeNarrowsBothEnds(t *testing.T) {
	tbl := defaultTable(t)
	min, max, clampedMin, clampedMax := tbl.ClampToEngineRange(500, 1800)
	assert.Equal(t, uint16(500), min)
	assert.Equal(t, uint16(1800), max)
	assert.True(t, clampedMin)
	assert.True(t, clampedMax)
}

func TestClampToEngineRangeNoOpWhenWithinHardwareRange(t *testing.T) {
	tbl := defaultTable(t)
	min, max, clampedMin, clampedMax := tbl.ClampToEngineRange(100, 3000)
	assert.Equal(t, uint16(350), min)
	assert.Equal(t, uint16(2000), max)
	assert.False(t, clampedMin)
	assert.False(t, clampedMax)
}
