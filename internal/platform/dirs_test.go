package platform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDataDirForLinuxUsesXDGDataHome(t *testing.T) {
	t.Parallel()

	dir, err := DefaultDataDirFor("linux", "/home/u", "/custom/share")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/custom/share", "voicebox"), dir)
}

func TestDefaultDataDirForLinuxFallsBackToDotLocal(t *testing.T) {
	t.Parallel()

	dir, err := DefaultDataDirFor("linux", "/home/u", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/home/u", ".local", "share", "voicebox"), dir)
}

func TestDefaultDataDirForDarwin(t *testing.T) {
	t.Parallel()

	dir, err := DefaultDataDirFor("darwin", "/Users/u", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/Users/u", "Library", "Application Support", "voicebox"), dir)
}

func TestDefaultConfigDirForLinuxUsesXDGConfigHome(t *testing.T) {
	t.Parallel()

	dir, err := DefaultConfigDirFor("linux", "/home/u", "/custom/config")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/custom/config", "voicebox"), dir)
}

func TestDefaultDirsRejectEmptyHome(t *testing.T) {
	t.Parallel()

	_, err := DefaultDataDirFor("linux", "", "")
	require.Error(t, err)

	_, err = DefaultConfigDirFor("linux", "", "")
	require.Error(t, err)
}

func TestDefaultDirsRejectUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultDataDirFor("windows", "/home/u", "")
	require.Error(t, err)
}

func TestResolveDataDirHonorsOverride(t *testing.T) {
	t.Parallel()

	dir, err := ResolveDataDir("/tmp/./somewhere")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("/tmp/somewhere"), dir)
}
