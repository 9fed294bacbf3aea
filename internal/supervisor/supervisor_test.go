package supervisor

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procpanel/tasksupervisor/internal/model"
	"github.com/procpanel/tasksupervisor/internal/registry"
	"github.com/procpanel/tasksupervisor/internal/taskstore"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a Unix shell")
	}
}

func newHarness(t *testing.T) (*Supervisor, *taskstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store := taskstore.New(filepath.Join(dir, "tasks.json"), nil)
	reg := registry.New()
	return New(store, reg, dir, nil), store
}

func TestStartRejectsMissingFields(t *testing.T) {
	sup, _ := newHarness(t)
	result := sup.Start(StartRequest{ID: "", StartCommand: ""})
	require.False(t, result.OK)
	require.ErrorIs(t, result.Err, ErrValidation)
}

func TestStartSuccessWithinWindow(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	result := sup.Start(StartRequest{ID: "t1", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, result.OK)
	require.Greater(t, result.PID, 0)

	status := sup.Status("t1")
	require.True(t, status.Running)
	sup.Stop(StopRequest{ID: "t1"})
}

func TestStartFailsWhenChildExitsDuringWindow(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	result := sup.Start(StartRequest{
		ID:               "t2",
		StartCommand:     "sh -c 'echo boom 1>&2; exit 2'",
		StartupTimeoutMS: 500,
	})
	require.False(t, result.OK)
	require.Equal(t, 2, result.Code)
	require.Contains(t, result.Stderr, "boom")

	status := sup.Status("t2")
	require.False(t, status.Running)
}

func TestRestartReusesPreviousCommand(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	start := sup.Start(StartRequest{ID: "t3", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, start.OK)

	restart := sup.Restart(RestartRequest{ID: "t3", StartupTimeoutMS: 200})
	require.True(t, restart.OK)
	require.NotEqual(t, start.PID, restart.PID)
	sup.Stop(StopRequest{ID: "t3"})
}

func TestRestartWithNoCommandAvailableFails(t *testing.T) {
	sup, _ := newHarness(t)
	result := sup.Restart(RestartRequest{ID: "unknown"})
	require.False(t, result.OK)
	require.ErrorIs(t, result.Err, ErrValidation)
}

func TestStopNotRunningReportsMessage(t *testing.T) {
	sup, _ := newHarness(t)
	result := sup.Stop(StopRequest{ID: "never-started"})
	require.True(t, result.OK)
	require.Equal(t, "not running", result.Message)
}

func TestStopTerminatesRunningChild(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	start := sup.Start(StartRequest{ID: "t4", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, start.OK)

	result := sup.Stop(StopRequest{ID: "t4"})
	require.True(t, result.OK)

	status := sup.Status("t4")
	require.False(t, status.Running)
}

func TestLogsAndClearLogs(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	start := sup.Start(StartRequest{ID: "t5", StartCommand: "sh -c 'echo one; sleep 60'", StartupTimeoutMS: 300})
	require.True(t, start.OK)

	time.Sleep(50 * time.Millisecond)
	stdout, _ := sup.Logs("t5")
	require.Contains(t, stdout, "one")

	sup.ClearLogs("t5")
	stdout, stderr := sup.Logs("t5")
	require.Empty(t, stdout)
	require.Empty(t, stderr)

	sup.Stop(StopRequest{ID: "t5"})
}

func TestLogsForUnknownEntryReturnsEmptySlices(t *testing.T) {
	sup, _ := newHarness(t)
	stdout, stderr := sup.Logs("nope")
	require.Equal(t, []string{}, stdout)
	require.Equal(t, []string{}, stderr)
}

func TestStartReplacingRunningChildLeavesAtMostOneLiveEntry(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	first := sup.Start(StartRequest{ID: "t7", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, first.OK)

	second := sup.Start(StartRequest{ID: "t7", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, second.OK)
	require.NotEqual(t, first.PID, second.PID)

	status := sup.Status("t7")
	require.True(t, status.Running)
	require.Equal(t, second.PID, *status.PID)

	sup.Stop(StopRequest{ID: "t7"})
}

func TestStartResetsRestartCountOnSuccess(t *testing.T) {
	requireUnix(t)
	sup, store := newHarness(t)
	_, err := store.Create(model.Task{ID: "t8", Name: "t8", StartCommand: "sleep 60", RestartCount: 3})
	require.NoError(t, err)

	result := sup.Start(StartRequest{ID: "t8", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, result.OK)

	stored, ok, err := store.Get("t8")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, stored.RestartCount)

	sup.Stop(StopRequest{ID: "t8"})
}

func TestStartClearsManualStoppedEvenOnFailure(t *testing.T) {
	requireUnix(t)
	sup, store := newHarness(t)
	_, err := store.Create(model.Task{ID: "t9", Name: "t9", ManualStopped: true})
	require.NoError(t, err)

	result := sup.Start(StartRequest{ID: "t9", StartCommand: "sh -c 'exit 1'", StartupTimeoutMS: 200})
	require.False(t, result.OK)

	stored, ok, err := store.Get("t9")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, stored.ManualStopped)
}

func TestCrashAfterStartupWindowMarksEntryNotRunning(t *testing.T) {
	requireUnix(t)
	sup, _ := newHarness(t)
	result := sup.Start(StartRequest{
		ID:               "t10",
		StartCommand:     "sh -c 'sleep 0.1; exit 1'",
		StartupTimeoutMS: 20,
	})
	require.True(t, result.OK)

	status := sup.Status("t10")
	require.True(t, status.Running)

	require.Eventually(t, func() bool {
		return !sup.Status("t10").Running
	}, time.Second, 10*time.Millisecond, "entry should be marked not-running once the child later exits")
}

func TestStartFlagsWasRunningBeforeShutdown(t *testing.T) {
	requireUnix(t)
	sup, store := newHarness(t)
	_, err := store.Create(model.Task{ID: "t6", Name: "t6", StartCommand: "sleep 60"})
	require.NoError(t, err)

	result := sup.Start(StartRequest{ID: "t6", StartCommand: "sleep 60", StartupTimeoutMS: 200})
	require.True(t, result.OK)

	stored, ok, err := store.Get("t6")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, stored.WasRunningBeforeShutdown)
	require.NotNil(t, stored.LastStarted)

	sup.Stop(StopRequest{ID: "t6"})
}
