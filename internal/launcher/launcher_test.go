package launcher

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a Unix shell")
	}
}

func TestSpawnCapturesStdout(t *testing.T) {
	requireUnix(t)
	h, err := Spawn("echo hello", t.TempDir(), nil)
	require.NoError(t, err)
	require.Greater(t, h.PID, 0)

	var lines []string
	for line := range h.StdoutLines() {
		lines = append(lines, line)
	}
	info := h.Wait()
	require.Equal(t, 0, info.Code)
	require.Equal(t, []string{"hello"}, lines)
}

func TestSpawnExitCode(t *testing.T) {
	requireUnix(t)
	h, err := Spawn("exit 7", t.TempDir(), nil)
	require.NoError(t, err)
	drain(h)
	info := h.Wait()
	require.Equal(t, 7, info.Code)
}

func TestSpawnInvalidCommandStillStarts(t *testing.T) {
	requireUnix(t)
	// The shell itself always starts; a missing binary surfaces as a
	// nonzero exit from the shell, not a Spawn error.
	h, err := Spawn("definitely-not-a-real-binary-xyz", t.TempDir(), nil)
	require.NoError(t, err)
	drain(h)
	info := h.Wait()
	require.NotEqual(t, 0, info.Code)
}

func TestTreeTerminateStopsChild(t *testing.T) {
	requireUnix(t)
	h, err := Spawn("sleep 30", t.TempDir(), nil)
	require.NoError(t, err)

	go drain(h)
	go h.Wait()
	require.NoError(t, h.TreeTerminate("SIGTERM"))

	select {
	case <-h.WaitDone():
	case <-time.After(3 * time.Second):
		t.Fatal("child was not terminated in time")
	}
}

func drain(h *Handle) {
	for range h.StdoutLines() {
	}
	for range h.StderrLines() {
	}
}
