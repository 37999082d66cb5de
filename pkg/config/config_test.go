package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	var warnings []string
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), func(s string) { warnings = append(warnings, s) })
	require.NoError(t, err)
	assert.Equal(t, Defaults.SampleIntervalUS, cfg.SampleIntervalUS)
	assert.NotEmpty(t, warnings)
}

func TestLoadAppliesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
timing:
  intervals:
    sample: 5000
  window-samples: 200
load-target:
  upper: 80
`)
	var warnings []string
	cfg, err := Load(path, func(s string) { warnings = append(warnings, s) })
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.SampleIntervalUS)
	assert.Equal(t, 200, cfg.WindowSamples)
	assert.Equal(t, 80.0, cfg.UpperLoadTargetPercent)
	assert.Equal(t, 70.0, cfg.LowerLoadTargetPercent) // defaulted to upper-10
}

func TestLoadRejectsMalformedSafePoints(t *testing.T) {
	path := writeConfig(t, `
safe-points:
  - frequency: 500
    voltage: 900
  - frequency: 800
    voltage: 800
`)
	_, err := Load(path, func(string) {})
	assert.Error(t, err)
}

func TestLoadAcceptsWellFormedSafePoints(t *testing.T) {
	path := writeConfig(t, `
safe-points:
  - frequency: 350
    voltage: 700
  - frequency: 2000
    voltage: 1000
`)
	cfg, err := Load(path, func(string) {})
	require.NoError(t, err)
	require.Len(t, cfg.SafePoints, 2)
	assert.Equal(t, uint16(350), cfg.SafePoints[0].FrequencyMHz)
}

func TestLoadWarnsOnNegativeInterval(t *testing.T) {
	path := writeConfig(t, `
timing:
  intervals:
    sample: -5
`)
	var warnings []string
	cfg, err := Load(path, func(s string) { warnings = append(warnings, s) })
	require.NoError(t, err)
	assert.Equal(t, Defaults.SampleIntervalUS, cfg.SampleIntervalUS)
	assert.NotEmpty(t, warnings)
}

func TestLoadRejectsBurstRateNotExceedingNormal(t *testing.T) {
	path := writeConfig(t, `
timing:
  ramp-rates:
    normal: 5.0
    burst: 2.0
`)
	var warnings []string
	cfg, err := Load(path, func(s string) { warnings = append(warnings, s) })
	require.NoError(t, err)
	assert.Equal(t, Defaults.RampRateBurstMHzPerMS, cfg.RampRateBurstMHzPerMS)
	assert.NotEmpty(t, warnings)
}
