// Package metrics exposes the governor's runtime state as Prometheus
// gauges, in the style of the reference fleet manager's per-component
// metrics packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "governor"

var (
	currentFrequencyMHz = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "frequency_mhz",
			Help:      "current engine clock target in MHz",
		},
	)

	currentVoltageMV = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "voltage_mv",
			Help:      "current voltage target in mV",
		},
	)

	loadPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "load_percent",
			Help:      "percent-busy over the active/burst sampling window",
		},
	)

	modeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "mode_state",
			Help:      "1 for the currently active process-governor mode, 0 otherwise",
		},
		[]string{"mode"},
	)

	processComfortScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "process_comfort_score",
			Help:      "last finalized comfort score per tracked process profile",
		},
		[]string{"process"},
	)

	actuationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "actuation_errors_total",
			Help:      "total number of failed sysfs writes",
		},
	)
)

// Register adds all governor metrics to reg. Call once at startup.
func Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{
		currentFrequencyMHz,
		currentVoltageMV,
		loadPercent,
		modeState,
		processComfortScore,
		actuationErrors,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func SetFrequencyMHz(v uint16) { currentFrequencyMHz.Set(float64(v)) }

func SetVoltageMV(v uint16) { currentVoltageMV.Set(float64(v)) }

func SetLoadPercent(v float64) { loadPercent.Set(v) }

// SetMode flips modeState so exactly one label value is 1 at a time.
func SetMode(allModes []string, active string) {
	for _, m := range allModes {
		if m == active {
			modeState.With(prometheus.Labels{"mode": m}).Set(1)
		} else {
			modeState.With(prometheus.Labels{"mode": m}).Set(0)
		}
	}
}

func SetProcessComfortScore(process string, score float64) {
	processComfortScore.With(prometheus.Labels{"process": process}).Set(score)
}

func IncActuationErrors() { actuationErrors.Inc() }
