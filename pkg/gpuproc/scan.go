// Package gpuproc implements per-process GPU cycle accounting (C4) and
// process identity resolution (C5): which processes are using the render
// node, how many cycles each has burned, and what name to file that under.
package gpuproc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// Sample is one process's accumulated DRM engine cycles at scan time.
type Sample struct {
	PID         int
	TotalCycles uint64
}

// Scanner walks /proc once per Scan call, looking for processes holding an
// open file descriptor into /dev/dri/*. PID enumeration uses
// procfs.AllProcs (the same call the teacher's fd component uses for
// process-count metrics); the per-fd walk and fdinfo cycle parse below have
// no procfs.Proc equivalent evidenced in the pack, so they talk to /proc
// directly, mirroring original_source/src/process_detection.rs.
type Scanner struct {
	fs procfs.FS
}

// NewScanner opens the default /proc mount.
func NewScanner() (*Scanner, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &Scanner{fs: fs}, nil
}

// Scan returns one Sample per process that holds at least one DRM fd and
// has burned at least one cycle. Per-process errors (a process exiting
// mid-scan, permission denied on another user's /proc entries) are
// tolerated and simply skip that process, per spec.md §7.
func (s *Scanner) Scan() ([]Sample, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, p := range procs {
		total, hasDRM := scanProcessFDs(p.PID)
		if hasDRM && total > 0 {
			samples = append(samples, Sample{PID: p.PID, TotalCycles: total})
		}
	}
	return samples, nil
}

func scanProcessFDs(pid int) (totalCycles uint64, hasDRM bool) {
	fdDir := filepath.Join("/proc", strconv.Itoa(pid), "fd")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return 0, false
	}
	for _, entry := range entries {
		fdPath := filepath.Join(fdDir, entry.Name())
		target, err := os.Readlink(fdPath)
		if err != nil || !strings.Contains(target, "/dev/dri/") {
			continue
		}
		hasDRM = true
		fdinfoPath := filepath.Join("/proc", strconv.Itoa(pid), "fdinfo", entry.Name())
		totalCycles += parseFdinfoCycles(fdinfoPath)
	}
	return totalCycles, hasDRM
}

// parseFdinfoCycles sums every "drm-engine-*" and "drm-cycles-*" value line
// in a fdinfo file. Missing or unreadable files contribute zero rather than
// erroring, since fds can disappear between readdir and read.
func parseFdinfoCycles(path string) uint64 {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var total uint64
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.HasPrefix(line, "drm-engine-") && !strings.HasPrefix(line, "drm-cycles-") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		total += v
	}
	return total
}
