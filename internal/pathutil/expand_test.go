package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_HomeShortcut(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/.autosend/jobs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".autosend", "jobs"), got)
}

func TestExpand_EnvVar(t *testing.T) {
	t.Setenv("AUTOSEND_PATH_TEST", "/tmp/autosend-path")

	got, err := Expand("$AUTOSEND_PATH_TEST/jobs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp/autosend-path/jobs"), got)
}

func TestExpand_Empty(t *testing.T) {
	got, err := Expand("   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpand_HomeEnvTilde(t *testing.T) {
	t.Setenv("HOME", "~")

	got, err := Expand("~/.autosend/jobs")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.NotEqual(t, byte('~'), got[0], "path not expanded: %q", got)
}

func TestEnsureParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "dedupe.json")

	require.NoError(t, EnsureParentDir(target))

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpand_TildeUserFormLeftAlone(t *testing.T) {
	got, err := Expand("~other/jobs")
	require.NoError(t, err)
	assert.Equal(t, "~other/jobs", got)
}

func TestExpandInPlace(t *testing.T) {
	t.Setenv("AUTOSEND_PATH_TEST", "/var/lib/autosend")

	jobs := "$AUTOSEND_PATH_TEST/jobs"
	empty := "  "
	require.NoError(t, ExpandInPlace(&jobs, &empty, nil))

	assert.Equal(t, "/var/lib/autosend/jobs", jobs)
	assert.Equal(t, "  ", empty)
}
