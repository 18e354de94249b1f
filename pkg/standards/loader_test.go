package standards

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLayerFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "repo.yaml", "max_tokens: 5000\nignore:\n  - node_modules/\n")

	l := LoadLayerFile(LayerRepository, path)
	require.NoError(t, l.Err)
	assert.Equal(t, 5000, l.Doc["max_tokens"])
	assert.Equal(t, []any{"node_modules/"}, l.Doc["ignore"])
}

func TestLoadLayerFileMissingIsEmpty(t *testing.T) {
	l := LoadLayerFile(LayerLocal, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, l.Err)
	assert.Empty(t, l.Doc)
}

func TestLoadLayerFileMalformedSetsErr(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "a: [unclosed\n")

	l := LoadLayerFile(LayerTeam, path)
	assert.Error(t, l.Err)
}

func TestSetHashChangesWithContent(t *testing.T) {
	a := []Layer{{Name: LayerRepository, Doc: map[string]any{"k": 1}}}
	b := []Layer{{Name: LayerRepository, Doc: map[string]any{"k": 2}}}

	ha, err := SetHash(a)
	require.NoError(t, err)
	hb, err := SetHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	ha2, err := SetHash(a)
	require.NoError(t, err)
	assert.Equal(t, ha, ha2)
}
