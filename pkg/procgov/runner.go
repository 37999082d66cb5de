package procgov

import (
	"context"
	"fmt"
	"time"

	"github.com/kwazou/cyan-governor/pkg/history"
	"github.com/kwazou/cyan-governor/pkg/loadwindow"
	"github.com/kwazou/cyan-governor/pkg/metrics"
	"github.com/kwazou/cyan-governor/pkg/profilestore"
)

// modeNames lists every procgov.Mode value, in the order metrics.SetMode
// needs to zero out the modes that aren't currently active.
var modeNames = []string{Idle.String(), Applied.String(), Learning.String(), Reevaluating.String()}

// ActivitySampler mirrors pkg/ramp's interface of the same name.
type ActivitySampler interface {
	ReadGUIActive() (bool, error)
}

// Voltages is the voltage-selection method the process-aware governor
// uses — always VoltageInterpolated; see DESIGN.md's resolution of
// spec.md's Open Question.
type Voltages interface {
	VoltageInterpolated(freqMHz uint16) uint16
}

// Actuator issues the sysfs write.
type Actuator interface {
	Set(freqMHz, voltageMV uint16) error
}

// ProfileStore is the narrow slice of pkg/profilestore.Store this package
// needs.
type ProfileStore interface {
	Get(name string) (profilestore.Profile, bool)
	Set(profilestore.Profile) error
}

// HistoryRecorder is the narrow slice of pkg/history.Store this package
// needs. A nil HistoryRecorder disables event recording.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Event) error
}

// Logger is the narrow slice of govlog's interface this package needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// Runner drives the single-thread process-aware control loop of spec.md
// §5: sample, account, govern, and actuate all happen in Run's goroutine.
type Runner struct {
	sampler  ActivitySampler
	monitor  *ProcessMonitor
	governor *Governor
	store    ProfileStore
	voltages Voltages
	actuate  Actuator
	log      Logger
	history  HistoryRecorder

	window       *loadwindow.Window
	tickInterval time.Duration

	trackedProcess string
}

// NewRunner wires the process-aware governor's collaborators. windowSize
// is the GPU-load sample window (spec.md §4.2); tickInterval is the
// control loop's cadence (10ms in the reference implementation). hist may
// be nil to disable event history recording.
func NewRunner(sampler ActivitySampler, monitor *ProcessMonitor, governor *Governor, store ProfileStore, voltages Voltages, actuate Actuator, log Logger, hist HistoryRecorder, windowSize int, tickInterval time.Duration) *Runner {
	return &Runner{
		sampler:      sampler,
		monitor:      monitor,
		governor:     governor,
		store:        store,
		voltages:     voltages,
		actuate:      actuate,
		log:          log,
		history:      hist,
		window:       loadwindow.New(windowSize),
		tickInterval: tickInterval,
	}
}

// recordEvent appends e to the history log, if one is configured, logging
// (rather than propagating) any write failure so history keeping never
// blocks governing.
func (r *Runner) recordEvent(ctx context.Context, eventType, process string, freq uint16, detail string) {
	if r.history == nil {
		return
	}
	e := history.Event{Time: time.Now(), Type: eventType, ProcessName: process, FrequencyMHz: freq, Detail: detail}
	if err := r.history.Record(ctx, e); err != nil {
		r.log.Errorw("history record failed", "error", err)
	}
}

// Run blocks until ctx is canceled or a fatal device/actuator error
// occurs.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.setFrequency(r.governor.params.MinFreqMHz); err != nil {
		return err
	}
	metrics.SetMode(modeNames, r.governor.ModeNow.String())

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		active, err := r.sampler.ReadGUIActive()
		if err != nil {
			return fmt.Errorf("procgov: activity read: %w", err)
		}
		r.window.Add(active)

		now := time.Now()
		detected, err := r.monitor.Update(now)
		if err != nil {
			// ScanError: per-pid procfs errors are already tolerated inside
			// Scan; an error here means /proc itself is unreadable, which
			// is not fatal to this governor — skip this tick's detection.
			r.log.Errorw("process scan failed", "error", err)
			detected = r.trackedProcess
		}

		if detected != r.trackedProcess {
			if err := r.handleProcessChange(ctx, now, detected); err != nil {
				return err
			}
		}

		if !r.window.IsFull() {
			continue
		}
		if err := r.step(ctx, now); err != nil {
			return err
		}
	}
}

func (r *Runner) handleProcessChange(ctx context.Context, now time.Time, detected string) error {
	if detected != "" {
		if r.governor.ModeNow == Learning || r.governor.ModeNow == Reevaluating {
			if r.trackedProcess != "" {
				if profile, ok := r.governor.FinalizeLearning(r.trackedProcess); ok {
					if err := r.store.Set(profile); err != nil {
						r.log.Errorw("profile save failed", "error", err)
					}
					metrics.SetProcessComfortScore(profile.Name, float64(profile.ComfortScore))
					r.recordEvent(ctx, "learning_finalized", profile.Name, profile.OptimalFreqMHz, "process switched away mid-learning")
				}
			}
		}

		if profile, ok := r.store.Get(detected); ok {
			r.governor.ApplyKnownFrequency(now, profile.OptimalFreqMHz)
			if err := r.setFrequency(profile.OptimalFreqMHz); err != nil {
				return err
			}
			r.recordEvent(ctx, "process_applied", detected, profile.OptimalFreqMHz, "known profile")
		} else {
			r.governor.StartLearning(now, r.governor.params.MinFreqMHz)
			if err := r.setFrequency(r.governor.params.MinFreqMHz); err != nil {
				return err
			}
			r.recordEvent(ctx, "process_learning_started", detected, r.governor.params.MinFreqMHz, "no known profile")
		}
	} else if r.trackedProcess != "" {
		r.governor.EnterIdle(now)
		if err := r.setFrequency(r.governor.params.MinFreqMHz); err != nil {
			return err
		}
		r.recordEvent(ctx, "process_idle", r.trackedProcess, r.governor.params.MinFreqMHz, "tracked process exited")
	}
	r.trackedProcess = detected
	metrics.SetMode(modeNames, r.governor.ModeNow.String())
	return nil
}

func (r *Runner) step(ctx context.Context, now time.Time) error {
	load := r.window.PercentBusy()
	r.governor.AddLoadSample(load)
	metrics.SetLoadPercent(load)
	if ls := r.governor.LearningStats(); ls != nil && (ls.currentFreq == nil || *ls.currentFreq != r.governor.CurrentFreqMHz) {
		ls.SetFrequency(r.governor.CurrentFreqMHz, load, now)
	}

	switch r.governor.ModeNow {
	case Idle:
		// nothing to do

	case Applied:
		if r.trackedProcess == "" {
			break
		}
		stable := r.monitor.IsProcessStable(now)
		if r.governor.CheckSaturation() && stable {
			if profile, ok := r.store.Get(r.trackedProcess); ok {
				r.governor.StartReevaluation(now, profile.OptimalFreqMHz)
				r.recordEvent(ctx, "reevaluation_started", r.trackedProcess, profile.OptimalFreqMHz, "saturation")
				metrics.SetMode(modeNames, r.governor.ModeNow.String())
			}
		} else if r.governor.CheckUnderload() && stable {
			if profile, ok := r.store.Get(r.trackedProcess); ok {
				r.governor.StartReevaluation(now, profile.OptimalFreqMHz)
				r.recordEvent(ctx, "reevaluation_started", r.trackedProcess, profile.OptimalFreqMHz, "underload")
				metrics.SetMode(modeNames, r.governor.ModeNow.String())
			}
		}

	case Learning, Reevaluating:
		if newFreq, changed := r.governor.TryAdjustLearning(now); changed {
			if err := r.setFrequency(newFreq); err != nil {
				return err
			}
		}

		if r.governor.LearningElapsed(now) && r.monitor.IsProcessStable(now) && r.trackedProcess != "" {
			if profile, ok := r.governor.FinalizeLearning(r.trackedProcess); ok {
				if err := r.store.Set(profile); err != nil {
					r.log.Errorw("profile save failed", "error", err)
				}
				metrics.SetProcessComfortScore(profile.Name, float64(profile.ComfortScore))
				r.recordEvent(ctx, "learning_finalized", profile.Name, profile.OptimalFreqMHz, "learning duration elapsed")
				r.governor.ApplyKnownFrequency(now, profile.OptimalFreqMHz)
				if err := r.setFrequency(profile.OptimalFreqMHz); err != nil {
					return err
				}
				metrics.SetMode(modeNames, r.governor.ModeNow.String())
			}
		}
	}
	return nil
}

func (r *Runner) setFrequency(freq uint16) error {
	volt := r.voltages.VoltageInterpolated(freq)
	if err := r.actuate.Set(freq, volt); err != nil {
		metrics.IncActuationErrors()
		return fmt.Errorf("procgov: actuate %d MHz: %w", freq, err)
	}
	metrics.SetFrequencyMHz(freq)
	metrics.SetVoltageMV(volt)
	return nil
}
