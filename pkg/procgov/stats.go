// Package procgov implements the process-aware governor (C8): a mode
// machine that detects the dominant GPU-consuming process, learns its
// optimal frequency, and re-applies a previously learned profile the next
// time that process is seen.
package procgov

import "time"

const idealLoadPercent = 70.0

// FrequencyStats accumulates dwell time and observed load samples for one
// candidate frequency during a Learning/Re-evaluating phase.
type FrequencyStats struct {
	timeSpent   time.Duration
	loadSamples []float64
	lastEntry   time.Time
}

func newFrequencyStats() *FrequencyStats {
	return &FrequencyStats{}
}

// Enter marks the start of a dwell at this frequency.
func (s *FrequencyStats) Enter(now time.Time) { s.lastEntry = now }

// Exit accrues dwell time since the last Enter.
func (s *FrequencyStats) Exit(now time.Time) {
	if s.lastEntry.IsZero() {
		return
	}
	s.timeSpent += now.Sub(s.lastEntry)
	s.lastEntry = time.Time{}
}

func (s *FrequencyStats) AddLoadSample(load float64) {
	s.loadSamples = append(s.loadSamples, load)
}

func (s *FrequencyStats) AverageLoad() float64 {
	if len(s.loadSamples) == 0 {
		return 0
	}
	var sum float64
	for _, l := range s.loadSamples {
		sum += l
	}
	return sum / float64(len(s.loadSamples))
}

// ComfortScore is max(0, 100 - |average_load - 70|).
func (s *FrequencyStats) ComfortScore() float64 {
	deviation := s.AverageLoad() - idealLoadPercent
	if deviation < 0 {
		deviation = -deviation
	}
	score := 100 - deviation
	if score < 0 {
		return 0
	}
	return score
}

// minSamplesForFinalization is the "≥ 5 recorded load samples" gate from
// spec.md §4.8/P4.
const minSamplesForFinalization = 5

// LearningStats tracks FrequencyStats for every candidate frequency in
// [minFreq, maxFreq] stepped by freqStep, the transient record a learning
// or re-evaluation phase builds and then discards.
type LearningStats struct {
	order       []uint16 // ascending, for deterministic tie-breaking
	stats       map[uint16]*FrequencyStats
	currentFreq *uint16
}

// NewLearningStats pre-allocates one FrequencyStats per candidate
// frequency, mirroring the Rust LearningStats::new loop.
func NewLearningStats(minFreq, maxFreq, freqStep uint16) *LearningStats {
	ls := &LearningStats{stats: make(map[uint16]*FrequencyStats)}
	for f := minFreq; f <= maxFreq; f += freqStep {
		ls.order = append(ls.order, f)
		ls.stats[f] = newFrequencyStats()
		if freqStep == 0 {
			break
		}
	}
	return ls
}

// SetFrequency exits the previous frequency's dwell, enters the new one,
// and records the first load sample at it.
func (ls *LearningStats) SetFrequency(freq uint16, load float64, now time.Time) {
	if ls.currentFreq != nil {
		if prev, ok := ls.stats[*ls.currentFreq]; ok {
			prev.Exit(now)
		}
	}
	if cur, ok := ls.stats[freq]; ok {
		cur.Enter(now)
		cur.AddLoadSample(load)
	}
	f := freq
	ls.currentFreq = &f
}

func (ls *LearningStats) AddLoadSample(load float64) {
	if ls.currentFreq == nil {
		return
	}
	if cur, ok := ls.stats[*ls.currentFreq]; ok {
		cur.AddLoadSample(load)
	}
}

// BestFrequency returns the candidate frequency with the highest comfort
// score among those with >= 5 samples, implementing P4 (returns ok=false
// if none qualifies). Iteration is in ascending-frequency order so ties
// deterministically favor the lower frequency.
func (ls *LearningStats) BestFrequency() (freq uint16, comfort float64, samples int, ok bool) {
	bestScore := -1.0
	for _, f := range ls.order {
		s := ls.stats[f]
		if len(s.loadSamples) < minSamplesForFinalization {
			continue
		}
		if s.ComfortScore() > bestScore {
			bestScore = s.ComfortScore()
			freq, comfort, samples, ok = f, s.ComfortScore(), len(s.loadSamples), true
		}
	}
	return
}
