package procgov

import (
	"time"

	"github.com/kwazou/cyan-governor/pkg/profilestore"
)

// Mode is one of the four process-aware governor states (spec.md §4.8).
type Mode int

const (
	Idle Mode = iota
	Applied
	Learning
	Reevaluating
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "Idle"
	case Applied:
		return "Applied"
	case Learning:
		return "Learning"
	case Reevaluating:
		return "Reevaluating"
	default:
		return "Unknown"
	}
}

// Params are the constants governing learning/re-evaluation behavior, from
// spec.md §4.8.
type Params struct {
	MinFreqMHz uint16
	MaxFreqMHz uint16
	FreqStepMHz uint16

	LearningHistorySize   int
	SaturationHistorySize int

	HighLoadThresholdPercent float64
	LowLoadThresholdPercent  float64

	MinChangeInterval time.Duration
	LearningDuration  time.Duration
}

// Governor is the per-process mode machine (ProcessAwareGovernor analog).
type Governor struct {
	params Params

	CurrentFreqMHz uint16
	ModeNow        Mode
	modeStart      time.Time
	lastChange     time.Time

	loadHistory []float64 // bounded ring, oldest first

	learningStats            *LearningStats
	baseFreqForReevaluation  *uint16
}

// NewGovernor builds a governor starting Idle at MinFreqMHz.
func NewGovernor(params Params) *Governor {
	return &Governor{
		params:    params,
		CurrentFreqMHz: params.MinFreqMHz,
		ModeNow:   Idle,
		modeStart: time.Time{},
	}
}

func (g *Governor) StartLearning(now time.Time, startingFreq uint16) {
	g.ModeNow = Learning
	g.modeStart = now
	g.CurrentFreqMHz = startingFreq
	g.learningStats = NewLearningStats(g.params.MinFreqMHz, g.params.MaxFreqMHz, g.params.FreqStepMHz)
	g.loadHistory = nil
}

func (g *Governor) StartReevaluation(now time.Time, baseFreq uint16) {
	g.ModeNow = Reevaluating
	g.modeStart = now
	g.CurrentFreqMHz = baseFreq
	g.baseFreqForReevaluation = &baseFreq
	g.learningStats = NewLearningStats(g.params.MinFreqMHz, g.params.MaxFreqMHz, g.params.FreqStepMHz)
	g.loadHistory = nil
}

func (g *Governor) ApplyKnownFrequency(now time.Time, freq uint16) {
	g.ModeNow = Applied
	g.modeStart = now
	g.CurrentFreqMHz = freq
	g.learningStats = nil
	g.loadHistory = nil
}

func (g *Governor) EnterIdle(now time.Time) {
	g.ModeNow = Idle
	g.modeStart = now
	g.CurrentFreqMHz = g.params.MinFreqMHz
	g.learningStats = nil
	g.loadHistory = nil
}

// AddLoadSample appends load to the bounded saturation-history ring and,
// if currently learning/re-evaluating, to the learning stats too.
func (g *Governor) AddLoadSample(load float64) {
	if len(g.loadHistory) >= g.params.SaturationHistorySize {
		g.loadHistory = g.loadHistory[1:]
	}
	g.loadHistory = append(g.loadHistory, load)

	if g.learningStats != nil {
		g.learningStats.AddLoadSample(load)
	}
}

// LearningStats exposes the in-progress learning record so callers can
// call SetFrequency on frequency changes; nil outside Learning/Reevaluating.
func (g *Governor) LearningStats() *LearningStats { return g.learningStats }

func (g *Governor) AverageLoad() float64 {
	if len(g.loadHistory) == 0 {
		return 0
	}
	var sum float64
	for _, l := range g.loadHistory {
		sum += l
	}
	return sum / float64(len(g.loadHistory))
}

func (g *Governor) requiredSamples() int {
	if g.ModeNow == Learning || g.ModeNow == Reevaluating {
		return g.params.LearningHistorySize
	}
	return g.params.SaturationHistorySize
}

func (g *Governor) ShouldIncrease() bool {
	return g.CurrentFreqMHz < g.params.MaxFreqMHz &&
		len(g.loadHistory) >= g.requiredSamples() &&
		g.AverageLoad() >= g.params.HighLoadThresholdPercent
}

func (g *Governor) ShouldDecrease() bool {
	return g.CurrentFreqMHz > g.params.MinFreqMHz &&
		len(g.loadHistory) >= g.requiredSamples() &&
		g.AverageLoad() <= g.params.LowLoadThresholdPercent
}

// TryAdjustLearning steps CurrentFreqMHz by ±FreqStepMHz during
// Learning/Reevaluating, gated by MinChangeInterval, clearing load history
// after every successful step (spec.md §4.8's learning inner loop).
func (g *Governor) TryAdjustLearning(now time.Time) (newFreq uint16, changed bool) {
	if !g.lastChange.IsZero() && now.Sub(g.lastChange) < g.params.MinChangeInterval {
		return g.CurrentFreqMHz, false
	}

	var candidate uint16
	switch {
	case g.ShouldIncrease():
		candidate = g.CurrentFreqMHz + g.params.FreqStepMHz
		if candidate > g.params.MaxFreqMHz {
			candidate = g.params.MaxFreqMHz
		}
	case g.ShouldDecrease():
		if g.CurrentFreqMHz > g.params.FreqStepMHz {
			candidate = g.CurrentFreqMHz - g.params.FreqStepMHz
		}
		if candidate < g.params.MinFreqMHz {
			candidate = g.params.MinFreqMHz
		}
	default:
		return g.CurrentFreqMHz, false
	}

	if candidate == g.CurrentFreqMHz {
		return g.CurrentFreqMHz, false
	}
	g.CurrentFreqMHz = candidate
	g.lastChange = now
	g.loadHistory = nil
	return candidate, true
}

// FinalizeLearning returns the best candidate profile (P4), or ok=false if
// no frequency gathered enough samples or no learning was in progress.
func (g *Governor) FinalizeLearning(name string) (profilestore.Profile, bool) {
	if g.learningStats == nil {
		return profilestore.Profile{}, false
	}
	freq, comfort, samples, ok := g.learningStats.BestFrequency()
	if !ok {
		return profilestore.Profile{}, false
	}
	return profilestore.Profile{
		Name:           name,
		OptimalFreqMHz: freq,
		ComfortScore:   float32(comfort),
		SamplesCount:   samples,
	}, true
}

// CheckSaturation implements spec.md §4.8's Applied->Reevaluating
// saturation trigger (the stability guard is checked separately by the
// caller via ProcessMonitor.IsProcessStable).
func (g *Governor) CheckSaturation() bool {
	return g.ModeNow == Applied &&
		len(g.loadHistory) >= g.params.SaturationHistorySize &&
		g.AverageLoad() > g.params.HighLoadThresholdPercent
}

func (g *Governor) CheckUnderload() bool {
	return g.ModeNow == Applied &&
		len(g.loadHistory) >= g.params.SaturationHistorySize &&
		g.AverageLoad() < g.params.LowLoadThresholdPercent
}

// LearningElapsed reports whether LearningDuration has passed since the
// current mode was entered.
func (g *Governor) LearningElapsed(now time.Time) bool {
	return !g.modeStart.IsZero() && now.Sub(g.modeStart) >= g.params.LearningDuration
}
