package profilestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCacheDirHonorsXDGCacheHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	assert.Equal(t, dir, resolveCacheDir())
}

func TestOpenUsesXDGCacheHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	s, err := Open()
	require.NoError(t, err)
	require.NoError(t, s.Set(Profile{Name: "Hades", OptimalFreqMHz: 1200, ComfortScore: 90, SamplesCount: 10}))

	expected := filepath.Join(dir, defaultCacheSubdir, "process_profiles.json")
	_, statErr := os.Stat(expected)
	assert.NoError(t, statErr, "profile file should land under $XDG_CACHE_HOME")
}

func TestOpenAtMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenAt(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Profiles())
}

func TestOpenAtCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := OpenAt(path)
	require.NoError(t, err)
	assert.Empty(t, s.Profiles())
}

func TestSetThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenAt(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)

	p := Profile{Name: "Hades", OptimalFreqMHz: 1400, ComfortScore: 82.5, SamplesCount: 7}
	require.NoError(t, s.Set(p))

	got, ok := s.Get("Hades")
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	s1, err := OpenAt(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(Profile{Name: "Portal2", OptimalFreqMHz: 1200, ComfortScore: 91, SamplesCount: 12}))

	s2, err := OpenAt(path)
	require.NoError(t, err)
	got, ok := s2.Get("Portal2")
	require.True(t, ok)
	assert.Equal(t, uint16(1200), got.OptimalFreqMHz)
}
