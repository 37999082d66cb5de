package profilestore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTableIncludesStoredProfiles(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenAt(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set(Profile{Name: "Hades", OptimalFreqMHz: 1200, ComfortScore: 98.5, SamplesCount: 50}))

	var buf bytes.Buffer
	s.RenderTable(&buf)

	out := buf.String()
	assert.Contains(t, out, "Hades")
	assert.Contains(t, out, "1200")
}
