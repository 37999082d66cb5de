package actuator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Writer issues "vc 0 <freq> <volt>" / "c" commands to a device's
// pp_od_clk_voltage sysfs file, per the AMDGPU overdrive ABI: "vc" sets
// voltage curve point 0 (the single point these governors ever touch),
// and "c" commits the pending change.
type Writer struct {
	f *os.File
}

// OpenWriter opens pp_od_clk_voltage under sysfsPath for writing. The file
// must already exist; the kernel creates it when overdrive is supported.
func OpenWriter(sysfsPath string) (*Writer, error) {
	f, err := os.OpenFile(filepath.Join(sysfsPath, "pp_od_clk_voltage"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("actuator: open pp_od_clk_voltage: %w", err)
	}
	return &Writer{f: f}, nil
}

// Close releases the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Set writes and commits one (frequency, voltage) pair. Each write is
// flushed immediately; pp_od_clk_voltage has no buffering of its own but
// the kernel only applies "c" once it sees the full commit line.
func (w *Writer) Set(freqMHz, voltageMV uint16) error {
	if _, err := fmt.Fprintf(w.f, "vc 0 %d %d\n", freqMHz, voltageMV); err != nil {
		return fmt.Errorf("actuator: write voltage curve point: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("actuator: flush voltage curve point: %w", err)
	}
	if _, err := w.f.WriteString("c\n"); err != nil {
		return fmt.Errorf("actuator: write commit: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("actuator: flush commit: %w", err)
	}
	return nil
}
