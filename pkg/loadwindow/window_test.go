package loadwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S1 from spec.md §8.
func TestScenarioS1Alternating(t *testing.T) {
	w := New(100)
	for i := 0; i < 100; i++ {
		w.Add(i%2 == 0)
	}
	assert.Equal(t, 50.0, w.PercentBusy())

	for i := 0; i < 100; i++ {
		w.Add(true)
	}
	assert.Equal(t, 100.0, w.PercentBusy())

	w.Add(false)
	assert.Equal(t, 99.0, w.PercentBusy())
}

func TestEmptyWindow(t *testing.T) {
	w := New(10)
	assert.Equal(t, 0.0, w.PercentBusy())
	assert.False(t, w.IsFull())
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	w := New(5)
	for i := 0; i < 50; i++ {
		w.Add(i%3 == 0)
		assert.LessOrEqual(t, w.Len(), 5)
	}
	assert.True(t, w.IsFull())
}

func TestActiveCountMatchesBuffer(t *testing.T) {
	w := New(4)
	pattern := []bool{true, true, false, true, false, false, true, true, true}
	for _, p := range pattern {
		w.Add(p)
	}
	// last 4 samples: false, true, true, true -> 3 active
	assert.InDelta(t, 75.0, w.PercentBusy(), 0.001)
}

func TestBurstRegisterDisabledWhenZero(t *testing.T) {
	b := NewBurstRegister(0)
	for i := 0; i < 64; i++ {
		assert.False(t, b.Add(true))
	}
}

// S4 from spec.md §8: 48 consecutive busy samples trigger a burst on the
// 48th sample.
func TestBurstRegisterDetectsContiguousRun(t *testing.T) {
	b := NewBurstRegister(48)
	for i := 0; i < 47; i++ {
		assert.False(t, b.Add(true), "sample %d should not yet burst", i)
	}
	assert.True(t, b.Add(true))
}

func TestBurstRegisterBrokenByGap(t *testing.T) {
	b := NewBurstRegister(4)
	b.Add(true)
	b.Add(true)
	b.Add(false)
	b.Add(true)
	assert.False(t, b.Burst())
	b.Add(true)
	b.Add(true)
	b.Add(true)
	assert.True(t, b.Burst())
}

func TestBurstRegisterFullWidth(t *testing.T) {
	b := NewBurstRegister(64)
	for i := 0; i < 63; i++ {
		assert.False(t, b.Add(true))
	}
	assert.True(t, b.Add(true))
}
