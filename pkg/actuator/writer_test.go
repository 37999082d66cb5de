package actuator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSetWritesVoltageCurveAndCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pp_od_clk_voltage")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Set(1200, 900))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "vc 0 1200 900\nc\n", string(content))
}

func TestOpenWriterMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenWriter(dir)
	assert.Error(t, err)
}
