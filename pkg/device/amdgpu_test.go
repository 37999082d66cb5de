package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysfsPathFormatting(t *testing.T) {
	loc := BusLocation{Domain: 0, Bus: 1, Dev: 0, Func: 0}
	assert.Equal(t, "/sys/bus/pci/devices/0000:01:00.0", loc.sysfsPath())
}

func TestDrmIOWRMatchesAmdgpuInfoIoctl(t *testing.T) {
	// DRM_IOCTL_AMDGPU_INFO for a 32-byte payload, computed independently
	// from the Linux _IOC encoding: dir(3)<<30 | size<<16 | type<<8 | nr.
	want := uintptr(3<<30 | 32<<16 | drmIoctlBase<<8 | amdgpuInfoIoctlNr)
	got := drmIOWR(amdgpuInfoIoctlNr, 32)
	assert.Equal(t, want, got)
}

func TestReadSysfsHexField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor"), []byte("0x1002\n"), 0o644))

	v, err := readSysfsHexField(dir, "vendor")
	require.NoError(t, err)
	assert.Equal(t, "0x1002", v)
}

func TestFindRenderNode(t *testing.T) {
	dir := t.TempDir()
	drmDir := filepath.Join(dir, "drm", "renderD128")
	require.NoError(t, os.MkdirAll(drmDir, 0o755))

	path, err := findRenderNode(dir)
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/renderD128", path)
}

func TestFindRenderNodeMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := findRenderNode(dir)
	assert.Error(t, err)
}

func TestEngineClockRangeMHzParsesFirstAndLastLevel(t *testing.T) {
	dir := t.TempDir()
	content := "0: 200Mhz\n1: 400Mhz\n2: 1000Mhz *\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp_dpm_sclk"), []byte(content), 0o644))

	h := &Handle{sysfs: dir}
	min, max, err := h.EngineClockRangeMHz()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), min)
	assert.Equal(t, uint64(1000), max)
}

func TestEngineClockRangeMHzEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp_dpm_sclk"), []byte(""), 0o644))

	h := &Handle{sysfs: dir}
	_, _, err := h.EngineClockRangeMHz()
	assert.Error(t, err)
}

func TestIdentityErrorMessage(t *testing.T) {
	err := &IdentityError{Vendor: "0x10de", Device: "0x2783"}
	assert.Contains(t, err.Error(), "0x10de")
	assert.Contains(t, err.Error(), expectedVendor)
}
