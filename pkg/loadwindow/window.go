// Package loadwindow implements the sliding-window load estimator (C2) and
// the burst shift register used to detect sustained contiguous GPU
// activity. Neither type is safe for concurrent use; each governor owns
// exactly one of each.
package loadwindow

// Window is a bounded ring of activity samples. percent_busy is maintained
// incrementally: active_count tracks how many of the buffered samples are
// true, so PercentBusy is O(1) regardless of capacity.
type Window struct {
	samples     []bool
	capacity    int
	head        int // index of the oldest sample once full
	len         int
	activeCount int
}

// New returns a Window with the given capacity. A capacity of zero is
// nonsensical for a governor but is accepted here; PercentBusy simply
// always reports 0 in that case.
func New(capacity int) *Window {
	return &Window{
		samples:  make([]bool, capacity),
		capacity: capacity,
	}
}

// Add records one activity sample, evicting the oldest sample if the
// window is already at capacity.
func (w *Window) Add(active bool) {
	if w.capacity == 0 {
		return
	}
	if w.len < w.capacity {
		idx := (w.head + w.len) % w.capacity
		w.samples[idx] = active
		w.len++
	} else {
		evicted := w.samples[w.head]
		if evicted {
			w.activeCount--
		}
		w.samples[w.head] = active
		w.head = (w.head + 1) % w.capacity
	}
	if active {
		w.activeCount++
	}
}

// PercentBusy returns 100*active/len, or 0 when the window is empty.
func (w *Window) PercentBusy() float64 {
	if w.len == 0 {
		return 0
	}
	return float64(w.activeCount) / float64(w.len) * 100
}

// Len reports how many samples are currently buffered (≤ capacity).
func (w *Window) Len() int { return w.len }

// IsFull reports whether the window has reached its configured capacity.
func (w *Window) IsFull() bool { return w.len == w.capacity }

// BurstRegister is a 64-bit shift register of the most recent activity
// samples, used to detect a contiguous run of B busy samples. It is
// intentionally separate from Window: a burst requires contiguity, while
// Window tracks an aggregate percentage.
type BurstRegister struct {
	bits uint64
	mask uint64 // zero disables burst detection entirely
}

// NewBurstRegister builds a register that fires once the low burstSamples
// bits are all set. burstSamples must be in [0, 64]; 0 disables burst
// detection, 64 requires the full register to be busy.
func NewBurstRegister(burstSamples int) *BurstRegister {
	var mask uint64
	switch {
	case burstSamples <= 0:
		mask = 0
	case burstSamples >= 64:
		mask = ^uint64(0)
	default:
		mask = ^(^uint64(0) << uint(burstSamples))
	}
	return &BurstRegister{mask: mask}
}

// Add shifts in one new sample and reports whether a burst is currently
// detected (the low burstSamples bits are all 1).
func (b *BurstRegister) Add(active bool) bool {
	b.bits <<= 1
	if active {
		b.bits |= 1
	}
	return b.Burst()
}

// Burst reports the current burst state without adding a new sample.
func (b *BurstRegister) Burst() bool {
	if b.mask == 0 {
		return false
	}
	return b.bits&b.mask == b.mask
}
