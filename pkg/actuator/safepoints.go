// Package actuator owns the safe-point table and the two voltage-selection
// methods the governors use to turn a target frequency into a
// pp_od_clk_voltage write (C3).
package actuator

import (
	"fmt"
	"sort"
)

// SafePoint is one known-safe (frequency MHz, voltage mV) pair.
type SafePoint struct {
	FrequencyMHz uint16
	VoltageMV    uint16
}

// Table is an ordered, validated set of safe points. Callers build one with
// NewTable and never mutate the slice directly.
type Table struct {
	points []SafePoint // sorted ascending by FrequencyMHz
}

// DefaultSafePoints mirrors the conservative fallback the original governor
// prints a warning and falls back to when no safe-points config is given.
var DefaultSafePoints = []SafePoint{
	{FrequencyMHz: 350, VoltageMV: 700},
	{FrequencyMHz: 2000, VoltageMV: 1000},
}

// NewTable validates and sorts points: frequencies must be unique, and
// voltage must be monotonically non-decreasing with frequency (a higher
// safe frequency can never require a lower voltage than a lower one).
func NewTable(points []SafePoint) (*Table, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("safe-points must not be empty")
	}
	sorted := make([]SafePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FrequencyMHz < sorted[j].FrequencyMHz })

	seen := make(map[uint16]bool, len(sorted))
	for i, p := range sorted {
		if seen[p.FrequencyMHz] {
			return nil, fmt.Errorf("multiple supposedly safe voltages for %d MHz", p.FrequencyMHz)
		}
		seen[p.FrequencyMHz] = true
		if i > 0 && p.VoltageMV < sorted[i-1].VoltageMV {
			return nil, fmt.Errorf(
				"supposedly safe voltage %d mV for %d MHz is higher than %d mV for %d MHz",
				sorted[i-1].VoltageMV, sorted[i-1].FrequencyMHz, p.VoltageMV, p.FrequencyMHz)
		}
	}
	return &Table{points: sorted}, nil
}

// MinFrequencyMHz and MaxFrequencyMHz are the first and last configured
// safe points, the ends of the table's supported frequency range.
func (t *Table) MinFrequencyMHz() uint16 { return t.points[0].FrequencyMHz }
func (t *Table) MaxFrequencyMHz() uint16 { return t.points[len(t.points)-1].FrequencyMHz }

// MinVoltageMV and MaxVoltageMV are the voltages at the table's frequency
// endpoints, the bounds VoltageInterpolated scales between.
func (t *Table) MinVoltageMV() uint16 { return t.points[0].VoltageMV }
func (t *Table) MaxVoltageMV() uint16 { return t.points[len(t.points)-1].VoltageMV }

// ErrBeyondMaxSafePoint is returned by VoltageForRange when freq exceeds
// every configured safe point.
var ErrBeyondMaxSafePoint = fmt.Errorf("tried to set a frequency beyond max safe point")

// VoltageForRange returns the voltage of the smallest configured safe point
// whose frequency is >= freq (a BTreeMap range(freq..).next() lookup). This
// is the method the continuous ramp governor uses: it never interpolates,
// so every voltage it ever requests is one a human explicitly approved.
func (t *Table) VoltageForRange(freq uint16) (uint16, error) {
	idx := sort.Search(len(t.points), func(i int) bool { return t.points[i].FrequencyMHz >= freq })
	if idx == len(t.points) {
		return 0, ErrBeyondMaxSafePoint
	}
	return t.points[idx].VoltageMV, nil
}

// VoltageInterpolated linearly interpolates voltage between the table's
// min and max safe points only, ignoring any intermediate points. This is
// the method the process-aware governor uses; it trades the range method's
// guarantee (every requested voltage was explicitly configured) for smooth
// voltage scaling across a continuous learned frequency target.
func (t *Table) VoltageInterpolated(freq uint16) uint16 {
	minF, maxF := t.MinFrequencyMHz(), t.MaxFrequencyMHz()
	minV, maxV := t.MinVoltageMV(), t.MaxVoltageMV()
	if freq <= minF {
		return minV
	}
	if freq >= maxF {
		return maxV
	}
	freqRange := uint32(maxF - minF)
	voltageRange := uint32(maxV - minV)
	freqOffset := uint32(freq - minF)
	return minV + uint16(freqOffset*voltageRange/freqRange)
}

// ClampToEngineRange narrows [minFreq, maxFreq] to the intersection of the
// safe-point table's range and the hardware-reported engine clock range,
// logging is the caller's responsibility since this package has no logger.
func (t *Table) ClampToEngineRange(hwMin, hwMax uint16) (minFreq, maxFreq uint16, clampedMin, clampedMax bool) {
	minFreq, maxFreq = t.MinFrequencyMHz(), t.MaxFrequencyMHz()
	if minFreq < hwMin {
		minFreq = hwMin
		clampedMin = true
	}
	if maxFreq > hwMax {
		maxFreq = hwMax
		clampedMax = true
	}
	return minFreq, maxFreq, clampedMin, clampedMax
}
