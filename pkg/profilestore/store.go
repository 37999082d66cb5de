// Package profilestore persists per-process learned frequency profiles
// (C6) to a JSON file under the user's cache directory, keyed by the
// resolved process identity from pkg/gpuproc.
package profilestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
)

// resolveCacheDir follows spec.md §6: honor $XDG_CACHE_HOME when set, fall
// back to $HOME/.cache via go-homedir, and finally to /tmp if even that
// can't be resolved — mirroring the original's
// dirs::cache_dir().unwrap_or_else(|| PathBuf::from("/tmp")), which never
// hard-fails startup over a cache-directory lookup.
func resolveCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".cache")
	}
	return "/tmp"
}

// Profile is one process's learned operating point.
type Profile struct {
	Name          string  `json:"name"`
	OptimalFreqMHz uint16  `json:"optimal_freq"`
	ComfortScore  float32 `json:"comfort_score"`
	SamplesCount  int     `json:"samples_count"`
}

// Store is a JSON-file-backed map of process name -> Profile. It loads the
// whole file once at construction and rewrites the whole file on every Set,
// matching the original database's load-once/save-whole-map semantics; a
// missing or corrupt file is treated as an empty store rather than an
// error, since a first run or an interrupted write should never block
// governing.
type Store struct {
	mu       sync.Mutex
	path     string
	profiles map[string]Profile
}

// defaultCacheSubdir is the application directory created under the user's
// XDG cache dir (or $HOME/.cache as homedir's fallback resolves it).
const defaultCacheSubdir = "cyan-skillfish-governor"

// CacheDir returns the application's cache directory (honoring
// $XDG_CACHE_HOME, then $HOME/.cache, then /tmp), without creating it. Other
// packages that need a sibling file under the same cache root (such as
// pkg/history's event database) use this instead of re-deriving the path.
func CacheDir() string {
	return filepath.Join(resolveCacheDir(), defaultCacheSubdir)
}

// Open resolves the cache directory (honoring $XDG_CACHE_HOME, then
// $HOME/.cache, then /tmp), creates it if necessary, and loads any existing
// process_profiles.json.
func Open() (*Store, error) {
	dir := CacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return OpenAt(filepath.Join(dir, "process_profiles.json"))
}

// OpenAt loads (or initializes) a store at an explicit path, useful for
// tests and for callers that resolve the cache directory themselves.
func OpenAt(path string) (*Store, error) {
	s := &Store{path: path, profiles: make(map[string]Profile)}
	s.load()
	return s, nil
}

func (s *Store) load() {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var profiles map[string]Profile
	if err := json.Unmarshal(content, &profiles); err != nil {
		return
	}
	s.profiles = profiles
}

// Get returns the stored profile for name, if any.
func (s *Store) Get(name string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Set stores profile (keyed by profile.Name) and persists the whole map.
// Persistence errors are returned so the caller's governor can log them;
// the in-memory profile is updated regardless, so a transient write
// failure doesn't lose this cycle's learning.
func (s *Store) Set(profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Name] = profile
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.profiles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Profiles returns a snapshot copy of every stored profile, for summary
// reporting.
func (s *Store) Profiles() map[string]Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Profile, len(s.profiles))
	for k, v := range s.profiles {
		out[k] = v
	}
	return out
}
