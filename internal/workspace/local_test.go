package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndFindRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "designs", "toggle")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, err := FindRoot(nested)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Initialize(root))
	assert.DirExists(t, filepath.Join(root, Dir, "db"))
	assert.FileExists(t, filepath.Join(root, Dir, ConfigFile))

	found, err := FindRoot(nested)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// a second init keeps the existing config
	path := filepath.Join(root, Dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0644))
	require.NoError(t, Initialize(root))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join(root, Dir), cfg.Database.Path)
}

func TestLoadWithoutConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0755))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, Dir), cfg.Database.Path)
	assert.False(t, cfg.Database.InMemory)
}
