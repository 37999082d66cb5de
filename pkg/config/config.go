// Package config loads the governor's YAML configuration document and
// applies the default-with-warning (ConfigWarning) / abort (ConfigFatal)
// semantics of spec.md §7.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kwazou/cyan-governor/pkg/actuator"
)

// SafePointYAML is one {frequency, voltage} entry in the YAML document.
type SafePointYAML struct {
	Frequency int `yaml:"frequency"`
	Voltage   int `yaml:"voltage"`
}

type intervalsYAML struct {
	SampleUS   *int `yaml:"sample"`
	AdjustUS   *int `yaml:"adjust"`
	FinetuneUS *int `yaml:"finetune"`
	LogS       *int `yaml:"log"`
	OptimizeUS *int `yaml:"optimize"`
}

type rampRatesYAML struct {
	Normal *float64 `yaml:"normal"`
	Burst  *float64 `yaml:"burst"`
}

type timingYAML struct {
	Intervals    intervalsYAML `yaml:"intervals"`
	WindowSamples *int         `yaml:"window-samples"`
	BurstSamples  *int         `yaml:"burst-samples"`
	RampRates     rampRatesYAML `yaml:"ramp-rates"`
}

type freqThresholdsYAML struct {
	FinetuneMHz *int `yaml:"finetune"`
	AdjustMHz   *int `yaml:"adjust"`
}

type loadTargetYAML struct {
	UpperPercent *float64 `yaml:"upper"`
	LowerPercent *float64 `yaml:"lower"`
}

// rawDocument mirrors the YAML document shape exactly; every leaf is a
// pointer so "absent" and "explicit zero" are distinguishable during
// validation.
type rawDocument struct {
	SafePoints          []SafePointYAML    `yaml:"safe-points"`
	Timing              timingYAML         `yaml:"timing"`
	FrequencyThresholds freqThresholdsYAML `yaml:"frequency-thresholds"`
	LoadTarget          loadTargetYAML     `yaml:"load-target"`
}

// Config is the validated, fully-defaulted in-memory configuration.
type Config struct {
	SafePoints []actuator.SafePoint

	SampleIntervalUS   int
	AdjustIntervalUS   int
	FinetuneIntervalUS int
	LogIntervalS       int
	OptimizeIntervalUS int // 0 disables

	WindowSamples int
	BurstSamples  int // 0 disables, max 64

	RampRateNormalMHzPerMS float64
	RampRateBurstMHzPerMS  float64

	FinetuneThresholdMHz int
	AdjustThresholdMHz   int

	UpperLoadTargetPercent float64
	LowerLoadTargetPercent float64
}

// Defaults per spec.md §6.
var Defaults = Config{
	SafePoints:             actuator.DefaultSafePoints,
	SampleIntervalUS:       2000,
	AdjustIntervalUS:       20000,
	FinetuneIntervalUS:     100000000,
	LogIntervalS:           60,
	OptimizeIntervalUS:     30000000,
	WindowSamples:          100,
	BurstSamples:           48,
	RampRateNormalMHzPerMS: 1.0,
	RampRateBurstMHzPerMS:  50.0,
	FinetuneThresholdMHz:   10,
	AdjustThresholdMHz:     100,
	UpperLoadTargetPercent: 90,
	LowerLoadTargetPercent: 80,
}

// Load reads and validates a YAML config file at path. Every malformed or
// out-of-domain scalar option is replaced by its default and a warning is
// logged via warn; safe-points, if present, must be well-formed or Load
// returns a fatal error (spec.md §7 ConfigFatal) — there is no safe
// default voltage table to fall back to for a partially-specified one.
func Load(path string, warn func(string)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		warn(fmt.Sprintf("config file %s unreadable (%v), using built-in defaults", path, err))
		return defaultConfig(), nil
	}

	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		warn(fmt.Sprintf("config file %s is not valid YAML (%v), using built-in defaults", path, err))
		return defaultConfig(), nil
	}

	cfg := defaultConfig()

	if len(doc.SafePoints) > 0 {
		points := make([]actuator.SafePoint, 0, len(doc.SafePoints))
		for i, p := range doc.SafePoints {
			if p.Frequency < 0 || p.Frequency > 0xffff {
				return nil, fmt.Errorf("safe-points[%d].frequency out of range", i)
			}
			if p.Voltage < 0 || p.Voltage > 0xffff {
				return nil, fmt.Errorf("safe-points[%d].voltage out of range", i)
			}
			points = append(points, actuator.SafePoint{
				FrequencyMHz: uint16(p.Frequency),
				VoltageMV:    uint16(p.Voltage),
			})
		}
		if _, err := actuator.NewTable(points); err != nil {
			return nil, fmt.Errorf("safe-points: %w", err)
		}
		cfg.SafePoints = points
	}

	applyIntOpt(doc.Timing.Intervals.SampleUS, &cfg.SampleIntervalUS, "timing.intervals.sample", warn)
	applyIntOpt(doc.Timing.Intervals.AdjustUS, &cfg.AdjustIntervalUS, "timing.intervals.adjust", warn)
	applyIntOpt(doc.Timing.Intervals.FinetuneUS, &cfg.FinetuneIntervalUS, "timing.intervals.finetune", warn)
	applyIntOpt(doc.Timing.Intervals.LogS, &cfg.LogIntervalS, "timing.intervals.log", warn)
	applyIntOpt(doc.Timing.Intervals.OptimizeUS, &cfg.OptimizeIntervalUS, "timing.intervals.optimize", warn)
	applyIntOpt(doc.Timing.WindowSamples, &cfg.WindowSamples, "timing.window-samples", warn)
	applyIntOpt(doc.Timing.BurstSamples, &cfg.BurstSamples, "timing.burst-samples", warn)
	applyFloatOpt(doc.Timing.RampRates.Normal, &cfg.RampRateNormalMHzPerMS, "timing.ramp-rates.normal", warn)
	applyFloatOpt(doc.Timing.RampRates.Burst, &cfg.RampRateBurstMHzPerMS, "timing.ramp-rates.burst", warn)
	applyIntOpt(doc.FrequencyThresholds.FinetuneMHz, &cfg.FinetuneThresholdMHz, "frequency-thresholds.finetune", warn)
	applyIntOpt(doc.FrequencyThresholds.AdjustMHz, &cfg.AdjustThresholdMHz, "frequency-thresholds.adjust", warn)
	applyFloatOpt(doc.LoadTarget.UpperPercent, &cfg.UpperLoadTargetPercent, "load-target.upper", warn)

	if doc.LoadTarget.LowerPercent != nil {
		v := *doc.LoadTarget.LowerPercent
		if v < 0 || v > cfg.UpperLoadTargetPercent {
			warn(fmt.Sprintf("load-target.lower %v invalid (must be <= upper), using upper-10", v))
			cfg.LowerLoadTargetPercent = clampLower(cfg.UpperLoadTargetPercent)
		} else {
			cfg.LowerLoadTargetPercent = v
		}
	} else {
		cfg.LowerLoadTargetPercent = clampLower(cfg.UpperLoadTargetPercent)
	}

	if cfg.BurstSamples < 0 || cfg.BurstSamples > 64 {
		warn(fmt.Sprintf("timing.burst-samples %d out of [0,64], using default", cfg.BurstSamples))
		cfg.BurstSamples = Defaults.BurstSamples
	}
	if cfg.BurstSamples > 0 && cfg.RampRateBurstMHzPerMS <= cfg.RampRateNormalMHzPerMS {
		warn("timing.ramp-rates.burst must exceed normal when burst is enabled, using default burst rate")
		cfg.RampRateBurstMHzPerMS = Defaults.RampRateBurstMHzPerMS
	}

	return cfg, nil
}

func clampLower(upper float64) float64 {
	lower := upper - 10
	if lower > upper {
		lower = upper
	}
	return lower
}

func defaultConfig() *Config {
	cfg := Defaults
	return &cfg
}

func applyIntOpt(v *int, dst *int, name string, warn func(string)) {
	if v == nil {
		return
	}
	if *v < 0 {
		warn(fmt.Sprintf("%s must be non-negative, using default %d", name, *dst))
		return
	}
	*dst = *v
}

func applyFloatOpt(v *float64, dst *float64, name string, warn func(string)) {
	if v == nil {
		return
	}
	if *v < 0 || *v > 100 && isPercentOption(name) {
		warn(fmt.Sprintf("%s out of range, using default %v", name, *dst))
		return
	}
	*dst = *v
}

func isPercentOption(name string) bool {
	return name == "load-target.upper" || name == "load-target.lower"
}

// NewLogger is a tiny convenience wrapper so cmd/governor doesn't need to
// import zap directly just to build a warn func for Load.
func NewLogger(sugar *zap.SugaredLogger) func(string) {
	return func(msg string) { sugar.Warn(msg) }
}
