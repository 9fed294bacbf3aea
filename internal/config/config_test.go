package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWorkingDirectoryFallsBackWhenUnset(t *testing.T) {
	require.Equal(t, "/base", ResolveWorkingDirectory("/base", ""))
}

func TestResolveWorkingDirectoryFallsBackWhenNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	require.Equal(t, dir, ResolveWorkingDirectory(dir, file))
}

func TestResolveWorkingDirectoryUsesValidDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o750))
	require.Equal(t, sub, ResolveWorkingDirectory(dir, sub))
}

func TestTaskDirCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	dir, err := TaskDir(base)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(base, "task"), dir)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TASKSUPERVISOR_BASE_DIR", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultGuardianTick, cfg.GuardianTick)
	require.Equal(t, defaultPortSearchMax, cfg.PortSearchMax)
}
