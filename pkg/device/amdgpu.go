// Package device opens the Cyan Skillfish (gfx1013) GPU, verifies its PCI
// identity, reads the GRBM_STATUS activity register, and exposes the sysfs
// paths the actuator needs to write frequency/voltage requests.
//
// The bus location and register layout are architecture constants (per
// spec.md §9's "shared mutable ambient state" note) and are not
// configurable at runtime.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BusLocation identifies a PCI device by domain:bus:device.function.
type BusLocation struct {
	Domain, Bus, Dev, Func uint32
}

// Cyan Skillfish (Steam Deck iGPU) is fixed at this location per spec.md §6.
var DefaultLocation = BusLocation{Domain: 0, Bus: 1, Dev: 0, Func: 0}

const (
	expectedVendor = "0x1002"
	expectedDevice = "0x13fe"

	// cyan_skillfish.gfx1013.mmGRBM_STATUS
	grbmStatusReg = 0x2004
	// cyan_skillfish.gfx1013.mmGRBM_STATUS.GUI_ACTIVE (bit 31)
	guiActiveBitMask uint32 = 1 << 31
)

func (l BusLocation) sysfsPath() string {
	return fmt.Sprintf("/sys/bus/pci/devices/%04x:%02x:%02x.%d", l.Domain, l.Bus, l.Dev, l.Func)
}

// IdentityError is returned when the device at BusLocation does not match
// the expected vendor/device ID (spec.md §7 DeviceIdentityError).
type IdentityError struct {
	Vendor, Device string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("GPU at expected PCI location reports vendor=%s device=%s, want vendor=%s device=%s",
		e.Vendor, e.Device, expectedVendor, expectedDevice)
}

// IOError wraps a failed MMIO read or sysfs operation (spec.md §7
// DeviceIOError); these are always fatal to the calling governor.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("device: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Handle is a verified, opened Cyan Skillfish device. Reads and sysfs path
// lookups are safe to call repeatedly; Handle owns the open render-node fd
// for the lifetime of the process.
type Handle struct {
	loc      BusLocation
	card     *os.File
	sysfs    string
	drmMinor string
}

// Open verifies the PCI identity at loc, opens its DRM render node, and
// returns a ready-to-use Handle. It is the only place §7's
// DeviceIdentityError can originate.
func Open(loc BusLocation) (*Handle, error) {
	sysfs := loc.sysfsPath()

	vendor, err := readSysfsHexField(sysfs, "vendor")
	if err != nil {
		return nil, &IOError{Op: "read vendor", Err: err}
	}
	devID, err := readSysfsHexField(sysfs, "device")
	if err != nil {
		return nil, &IOError{Op: "read device", Err: err}
	}
	if vendor != expectedVendor || devID != expectedDevice {
		return nil, &IdentityError{Vendor: vendor, Device: devID}
	}

	renderPath, err := findRenderNode(sysfs)
	if err != nil {
		return nil, &IOError{Op: "locate DRM render node", Err: err}
	}

	card, err := os.OpenFile(renderPath, os.O_RDWR, 0)
	if err != nil {
		return nil, &IOError{Op: "open DRM render node", Err: err}
	}

	return &Handle{loc: loc, card: card, sysfs: sysfs, drmMinor: filepath.Base(renderPath)}, nil
}

func readSysfsHexField(sysfs, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(sysfs, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func findRenderNode(sysfs string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(sysfs, "drm", "renderD*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no renderD* node under %s/drm", sysfs)
	}
	return filepath.Join("/dev/dri", filepath.Base(matches[0])), nil
}

// SysfsPath returns the PCI device's sysfs directory, the root for
// pp_od_clk_voltage and pp_dpm_sclk.
func (h *Handle) SysfsPath() string { return h.sysfs }

// Close releases the render-node file descriptor.
func (h *Handle) Close() error { return h.card.Close() }

// ReadGUIActive performs one ioctl MMIO read of GRBM_STATUS and reports
// whether the GUI_ACTIVE bit is set (spec.md §4.1). Any ioctl failure is
// fatal per §7 DeviceIOError.
func (h *Handle) ReadGUIActive() (bool, error) {
	status, err := h.readMMRegister(grbmStatusReg)
	if err != nil {
		return false, &IOError{Op: "read GRBM_STATUS", Err: err}
	}
	return status&guiActiveBitMask != 0, nil
}

// amdgpuInfoMMR mirrors the relevant fields of the kernel's
// struct drm_amdgpu_info when query == AMDGPU_INFO_READ_MMR_REG
// (include/uapi/drm/amdgpu_drm.h). Field order and widths match the C
// layout exactly on amd64/arm64 so no manual padding is required.
type amdgpuInfoMMR struct {
	ReturnPointer uint64
	ReturnSize    uint32
	Query         uint32
	DwordOffset   uint32
	Count         uint32
	Instance      uint32
	Flags         uint32
}

const (
	drmIoctlBase        = 0x64 // 'd'
	drmCommandBase      = 0x40
	amdgpuInfoIoctlNr   = drmCommandBase + 0x0d
	amdgpuInfoReadMMREG = 0x10
	allInstances        = 0xffffffff
)

// drmIOWR replicates the Linux _IOWR(type, nr, size) ioctl-number macro.
func drmIOWR(nr, size uintptr) uintptr {
	const (
		dirShift  = 30
		sizeShift = 16
		typeShift = 8
		dirReadWr = 3
	)
	return dirReadWr<<dirShift | size<<sizeShift | drmIoctlBase<<typeShift | nr
}

func (h *Handle) readMMRegister(regOffset uint32) (uint32, error) {
	var value uint32
	req := amdgpuInfoMMR{
		ReturnPointer: uint64(uintptr(unsafe.Pointer(&value))),
		ReturnSize:    uint32(unsafe.Sizeof(value)),
		Query:         amdgpuInfoReadMMREG,
		DwordOffset:   regOffset / 4,
		Count:         1,
		Instance:      allInstances,
	}
	cmd := drmIOWR(amdgpuInfoIoctlNr, unsafe.Sizeof(req))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.card.Fd(), cmd, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return 0, errno
	}
	return value, nil
}

// EngineClockRangeMHz reports the hardware-reported engine clock range by
// parsing pp_dpm_sclk (the kernel's list of discrete sclk performance
// levels, one per line: "<level>: <freq>Mhz [*]"). The lowest and highest
// listed levels bound the usable range.
func (h *Handle) EngineClockRangeMHz() (min, max uint64, err error) {
	f, err := os.Open(filepath.Join(h.sysfs, "pp_dpm_sclk"))
	if err != nil {
		return 0, 0, &IOError{Op: "open pp_dpm_sclk", Err: err}
	}
	defer f.Close()

	var first, last uint64
	seen := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		freqField := strings.TrimSpace(strings.TrimSuffix(strings.Fields(parts[1])[0], "Mhz"))
		mhz, perr := strconv.ParseUint(freqField, 10, 64)
		if perr != nil {
			continue
		}
		if !seen {
			first = mhz
			seen = true
		}
		last = mhz
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, &IOError{Op: "scan pp_dpm_sclk", Err: err}
	}
	if !seen {
		return 0, 0, &IOError{Op: "parse pp_dpm_sclk", Err: fmt.Errorf("no frequency levels found")}
	}
	return first, last, nil
}
