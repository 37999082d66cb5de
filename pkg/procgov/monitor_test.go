package procgov

import (
	"testing"
	"time"

	"github.com/kwazou/cyan-governor/pkg/gpuproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	samples []gpuproc.Sample
	names   map[int]string
}

func (f *fakeSource) Scan() ([]gpuproc.Sample, error) { return f.samples, nil }
func (f *fakeSource) Name(pid int) (string, error)    { return f.names[pid], nil }

func TestProcessMonitorTracksNewDominantProcess(t *testing.T) {
	src := &fakeSource{
		samples: []gpuproc.Sample{{PID: 100, TotalCycles: 1_000_000_000}},
		names:   map[int]string{100: "Hades"},
	}
	m := NewProcessMonitor(src, time.Second, 5, 2.0, 10*time.Second)

	name, err := m.Update(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Hades", name)
}

// P6 / S6: an excluded process's GPU usage can never become the tracked
// process, and the monitor reports no process at all if it is the only
// one active.
func TestProcessMonitorNeverTracksExcludedProcess(t *testing.T) {
	src := &fakeSource{
		samples: []gpuproc.Sample{{PID: 42, TotalCycles: 1_000_000_000}},
		names:   map[int]string{42: "kwin_wayland"},
	}
	m := NewProcessMonitor(src, time.Second, 5, 2.0, 10*time.Second)

	name, err := m.Update(time.Now())
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestProcessMonitorSwitchesOnlyWhenRatioExceeded(t *testing.T) {
	m := NewProcessMonitor(&fakeSource{}, time.Second, 5, 2.0, 10*time.Second)
	now := time.Now()

	src1 := &fakeSource{
		samples: []gpuproc.Sample{{PID: 1, TotalCycles: 1_000_000_000}},
		names:   map[int]string{1: "GameA"},
	}
	m.src = src1
	_, err := m.Update(now)
	require.NoError(t, err)
	require.Equal(t, "GameA", m.CurrentProcess())

	// GameB appears with more usage than GameA but under the 2x switch
	// ratio -> no switch. GameA: (2e9-1e9)/2s = 50% usage. GameB:
	// 1.6e9/2s = 80% usage. 80/50 = 1.6x, below the 2.0x switchRatio.
	src2 := &fakeSource{
		samples: []gpuproc.Sample{
			{PID: 1, TotalCycles: 2_000_000_000},
			{PID: 2, TotalCycles: 1_600_000_000},
		},
		names: map[int]string{1: "GameA", 2: "GameB"},
	}
	m.src = src2
	name, err := m.Update(now.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GameA", name)
}

func TestProcessMonitorIsProcessStable(t *testing.T) {
	m := NewProcessMonitor(&fakeSource{}, time.Second, 5, 2.0, 10*time.Second)
	now := time.Now()
	assert.False(t, m.IsProcessStable(now))

	src := &fakeSource{
		samples: []gpuproc.Sample{{PID: 1, TotalCycles: 1_000_000_000}},
		names:   map[int]string{1: "GameA"},
	}
	m.src = src
	_, err := m.Update(now)
	require.NoError(t, err)

	assert.False(t, m.IsProcessStable(now.Add(time.Second)))
	assert.True(t, m.IsProcessStable(now.Add(11*time.Second)))
}

func TestProcessMonitorResetsWhenNoProcessesActive(t *testing.T) {
	m := NewProcessMonitor(&fakeSource{}, time.Second, 5, 2.0, 10*time.Second)
	now := time.Now()
	src := &fakeSource{
		samples: []gpuproc.Sample{{PID: 1, TotalCycles: 1_000_000_000}},
		names:   map[int]string{1: "GameA"},
	}
	m.src = src
	_, err := m.Update(now)
	require.NoError(t, err)

	m.src = &fakeSource{}
	name, err := m.Update(now.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Empty(t, m.CurrentProcess())
}
