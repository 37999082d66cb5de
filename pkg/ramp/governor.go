// Package ramp implements the continuous ramp-based governor (C7): a
// threshold-band control loop with burst escalation, rate-limited writes,
// and an optional slow downward drift for energy optimization.
package ramp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kwazou/cyan-governor/pkg/loadwindow"
	"github.com/kwazou/cyan-governor/pkg/metrics"
)

// ActivitySampler is satisfied by pkg/device.Handle; accepting the
// interface here keeps this package testable without an open GPU handle.
type ActivitySampler interface {
	ReadGUIActive() (bool, error)
}

// VoltageTable is the voltage-selection method the ramp governor uses —
// always the safe-point range lookup (pkg/actuator's VoltageForRange),
// never interpolation; see DESIGN.md's resolution of spec.md's Open
// Question.
type VoltageTable interface {
	VoltageForRange(freqMHz uint16) (uint16, error)
}

// Actuator issues the actual sysfs write.
type Actuator interface {
	Set(freqMHz, voltageMV uint16) error
}

// Logger is the narrow slice of govlog's interface this package needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// Params are the tunable thresholds, rates, and intervals from spec.md
// §4.7 / §6's timing/frequency-thresholds/load-target sections.
type Params struct {
	UpThreshPercent   float64
	DownThreshPercent float64

	RampRateNormalMHzPerMS float64
	RampRateBurstMHzPerMS  float64

	SampleInterval   time.Duration
	AdjustInterval   time.Duration
	FinetuneInterval time.Duration
	LogInterval      time.Duration
	OptimizeInterval time.Duration // 0 disables

	FinetuneThresholdMHz   float64
	SignificantThresholdMHz float64

	MinFreqMHz uint16
	MaxFreqMHz uint16
}

// Governor runs the two-thread sampler/actuator model of spec.md §5.
type Governor struct {
	sampler  ActivitySampler
	voltages VoltageTable
	actuate  Actuator
	log      Logger
	params   Params

	window *loadwindow.Window
	burst  *loadwindow.BurstRegister

	currentFreq    uint16
	targetFreq     float64
	lastAdjustment time.Time
	lastFinetune   time.Time
	lastFreqChange time.Time
	logThrottle    time.Time
	stableSince    time.Time
}

// New builds a Governor starting at params.MinFreqMHz, the documented
// "floor" starting point (spec.md §8 S3).
func New(sampler ActivitySampler, voltages VoltageTable, actuate Actuator, log Logger, params Params, windowSamples, burstSamples int) *Governor {
	now := time.Time{}
	return &Governor{
		sampler:  sampler,
		voltages: voltages,
		actuate:  actuate,
		log:      log,
		params:   params,
		window:   loadwindow.New(windowSamples),
		burst:    loadwindow.NewBurstRegister(burstSamples),

		currentFreq: params.MinFreqMHz,
		targetFreq:  float64(params.MinFreqMHz),
		stableSince: now,
	}
}

// Run drives the sampler/governor loop in the calling goroutine and spawns
// the actuator goroutine, per spec.md §5. It blocks until ctx is canceled
// or a fatal device/actuator error occurs.
func (g *Governor) Run(ctx context.Context) error {
	targetCh := make(chan uint16, 1)

	var wg sync.WaitGroup
	var actuatorErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		actuatorErr = g.runActuator(ctx, targetCh)
	}()

	samplerErr := g.runSampler(ctx, targetCh)
	wg.Wait()

	if samplerErr != nil {
		return samplerErr
	}
	return actuatorErr
}

func (g *Governor) runSampler(ctx context.Context, targetCh chan<- uint16) error {
	ticker := time.NewTicker(g.params.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		active, err := g.sampler.ReadGUIActive()
		if err != nil {
			return fmt.Errorf("ramp: activity read: %w", err)
		}
		g.window.Add(active)
		burstActive := g.burst.Add(active)

		now := time.Now()
		g.step(now, burstActive)
		metrics.SetLoadPercent(g.window.PercentBusy())

		adjustDue := g.lastAdjustment.IsZero() || now.Sub(g.lastAdjustment) >= g.params.AdjustInterval
		if g.shouldWrite(now, burstActive) {
			quantized := quantize(g.targetFreq, g.params.MinFreqMHz, g.params.MaxFreqMHz)
			prevFreq := g.currentFreq
			g.currentFreq = quantized
			g.lastFinetune = now
			g.lastFreqChange = now
			publishLatest(targetCh, quantized)
			metrics.SetFrequencyMHz(quantized)
			g.maybeLog(now, prevFreq, burstActive)
		}
		if adjustDue || burstActive {
			g.lastAdjustment = now
		}
	}
}

// step advances targetFreq by one tick's worth of ramp, per spec.md §4.7.
func (g *Governor) step(now time.Time, burstActive bool) {
	sampleMS := g.params.SampleInterval.Seconds() * 1000
	percentBusy := g.window.PercentBusy()

	switch {
	case burstActive:
		g.targetFreq += g.params.RampRateBurstMHzPerMS * sampleMS
		g.stableSince = now
	case percentBusy > g.params.UpThreshPercent:
		g.targetFreq += g.params.RampRateNormalMHzPerMS * sampleMS
		g.stableSince = now
	case percentBusy < g.params.DownThreshPercent:
		g.targetFreq -= g.params.RampRateNormalMHzPerMS * sampleMS
		g.stableSince = now
	default:
		if g.optimizeDriftEligible(now, percentBusy) {
			g.targetFreq -= g.params.RampRateNormalMHzPerMS * 0.1 * sampleMS
		}
	}

	if g.targetFreq < float64(g.params.MinFreqMHz) {
		g.targetFreq = float64(g.params.MinFreqMHz)
	}
	if g.targetFreq > float64(g.params.MaxFreqMHz) {
		g.targetFreq = float64(g.params.MaxFreqMHz)
	}
}

func (g *Governor) optimizeDriftEligible(now time.Time, percentBusy float64) bool {
	if g.params.OptimizeInterval <= 0 {
		return false
	}
	if g.stableSince.IsZero() {
		return false
	}
	if now.Sub(g.stableSince) < g.params.OptimizeInterval {
		return false
	}
	return percentBusy < g.params.UpThreshPercent-2
}

// shouldWrite implements spec.md §4.7's write-gating rule and P3.
func (g *Governor) shouldWrite(now time.Time, burstActive bool) bool {
	intervalElapsed := g.lastAdjustment.IsZero() || now.Sub(g.lastAdjustment) >= g.params.AdjustInterval
	if !intervalElapsed && !burstActive {
		return false
	}

	quantized := quantize(g.targetFreq, g.params.MinFreqMHz, g.params.MaxFreqMHz)
	delta := absInt(int(quantized) - int(g.currentFreq))
	hitsBoundary := quantized != g.currentFreq && (quantized == g.params.MinFreqMHz || quantized == g.params.MaxFreqMHz)
	significant := float64(delta) >= g.params.SignificantThresholdMHz
	finetuneDue := (g.lastFinetune.IsZero() || now.Sub(g.lastFinetune) >= g.params.FinetuneInterval) &&
		float64(delta) >= g.params.FinetuneThresholdMHz
	burstWrite := burstActive && quantized != g.currentFreq

	return hitsBoundary || significant || finetuneDue || burstWrite
}

func (g *Governor) maybeLog(now time.Time, prevFreq uint16, burstActive bool) {
	if !g.logThrottle.IsZero() && now.Sub(g.logThrottle) < g.params.LogInterval {
		return
	}
	g.logThrottle = now
	direction := "="
	if g.currentFreq > prevFreq {
		direction = "up"
	} else if g.currentFreq < prevFreq {
		direction = "down"
	}
	reason := "threshold"
	if burstActive {
		reason = "burst"
	}
	g.log.Infof("[FREQ] %d MHz %s | load=%.1f%% reason=%s", g.currentFreq, direction, g.window.PercentBusy(), reason)
}

func (g *Governor) runActuator(ctx context.Context, targetCh <-chan uint16) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case freq, ok := <-targetCh:
			if !ok {
				return nil
			}
			volt, err := g.voltages.VoltageForRange(freq)
			if err != nil {
				metrics.IncActuationErrors()
				return fmt.Errorf("ramp: voltage lookup for %d MHz: %w", freq, err)
			}
			if err := g.actuate.Set(freq, volt); err != nil {
				metrics.IncActuationErrors()
				return fmt.Errorf("ramp: actuate %d MHz: %w", freq, err)
			}
			metrics.SetVoltageMV(volt)
		}
	}
}

// publishLatest implements the single-slot overwrite channel of spec.md
// §5: a non-blocking drain-then-send so only the newest target is ever
// observed by the actuator goroutine.
func publishLatest(ch chan uint16, v uint16) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func quantize(target float64, min, max uint16) uint16 {
	if target < float64(min) {
		return min
	}
	if target > float64(max) {
		return max
	}
	return uint16(target)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
