package gpuproc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v4/process"
)

// ExcludedProcesses are desktop/compositor/launcher processes that are
// never worth a learned profile even if they briefly touch the render
// node (a compositor compositing a game's frame, Steam's overlay, etc).
var ExcludedProcesses = map[string]bool{
	"kwin_wayland":    true,
	"kwin":            true,
	"Xwayland":        true,
	"ksmserver":       true,
	"plasmashell":     true,
	"kaccess":         true,
	"plasma":          true,
	"steam":           true,
	"steamwebhelper":  true,
	"Discord":         true,
	"code":            true,
	"electron":        true,
	"chrome":          true,
	"firefox":         true,
	"chromium":        true,
	"gnome-shell":     true,
	"mutter":          true,
	"xfwm4":           true,
	"marco":           true,
	"coolercontrol":   true,
	"systemsettings":  true,
}

// IsExcludedProcess reports whether the basename of name (path or bare
// name) is on the static exclusion list. Exact basename match only, never
// a substring match against the full path, to avoid false positives like
// a game installed under a directory named "steam".
func IsExcludedProcess(name string) bool {
	return ExcludedProcesses[filepath.Base(name)]
}

// ExtractSteamGameName looks for a "common" path component (the Steam
// library convention steamapps/common/<game>/...) and returns the
// directory immediately after it.
func ExtractSteamGameName(path string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	foundCommon := false
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if foundCommon {
			return part, true
		}
		if part == "common" {
			foundCommon = true
		}
	}
	return "", false
}

// Resolver resolves a PID to a stable, human-meaningful process identity,
// caching each resolution briefly since the same PID is rescanned every
// cycle for as long as it holds a GPU fd.
type Resolver struct {
	cache *gocache.Cache
}

// NewResolver builds a resolver whose name cache entries expire after ttl
// (processes rarely rename themselves mid-life, but short-TTL caching still
// lets a restarted PID under OS PID reuse pick up a fresh name quickly).
func NewResolver(ttl time.Duration) *Resolver {
	return &Resolver{cache: gocache.New(ttl, ttl*2)}
}

// Name resolves pid's identity, in the same precedence order as
// original_source/src/process_detection.rs::read_process_name:
//  1. cmdline argument ending in ".exe" (Wine/Proton game binaries),
//     preferring a Steam "common/<game>" path segment when present;
//  2. cwd, again preferring a Steam "common/<game>" segment, qualified
//     with the wine/proton exe name when the binary looks like a loader;
//  3. the full executable path;
//  4. /proc/<pid>/comm as a last resort.
func (r *Resolver) Name(pid int) (string, error) {
	key := strconv.Itoa(pid)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(string), nil
	}
	name, err := resolveName(pid)
	if err != nil {
		return "", err
	}
	r.cache.SetDefault(key, name)
	return name, nil
}

func resolveName(pid int) (string, error) {
	if name, ok := nameFromCmdline(pid); ok {
		return name, nil
	}
	if name, ok := nameFromCwd(pid); ok {
		return name, nil
	}
	if exe, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe")); err == nil && exe != "" {
		return strings.SplitN(exe, " (", 2)[0], nil
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	comm, err := p.Name()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(comm), nil
}

func nameFromCmdline(pid int) (string, bool) {
	raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return "", false
	}
	for _, arg := range strings.Split(string(raw), "\x00") {
		if arg == "" || !strings.HasSuffix(arg, ".exe") {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(arg), ".exe")
		if game, ok := ExtractSteamGameName(arg); ok {
			return game + "/" + stem, true
		}
		if parent := filepath.Dir(arg); parent != "." && parent != "/" {
			return filepath.Base(parent) + "/" + stem, true
		}
		return stem, true
	}
	return "", false
}

func nameFromCwd(pid int) (string, bool) {
	cwdLink, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err != nil {
		return "", false
	}
	exeLink, exeErr := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe"))
	exeName := filepath.Base(exeLink)
	looksLikeLoader := exeErr == nil && (strings.Contains(exeName, "wine") || strings.Contains(exeName, "proton"))

	if game, ok := ExtractSteamGameName(cwdLink); ok {
		if looksLikeLoader {
			return game + "/" + exeName, true
		}
		return game, true
	}
	if looksLikeLoader {
		return filepath.Base(cwdLink) + "/" + exeName, true
	}
	return "", false
}
