package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEntryStartsRunning(t *testing.T) {
	e := NewEntry(nil, "sleep 60", "/tmp", nil)
	require.True(t, e.IsRunning())
	snap := e.Snapshot()
	require.True(t, snap.Running)
	require.False(t, snap.Killed)
}

func TestMarkExitedStopsRunning(t *testing.T) {
	e := NewEntry(nil, "sleep 60", "/tmp", nil)
	e.MarkExited(1, "", false)
	require.False(t, e.IsRunning())
	snap := e.Snapshot()
	require.Equal(t, 1, snap.ExitCode)
}

func TestKilledEntryNotRunningEvenIfFlagSet(t *testing.T) {
	e := NewEntry(nil, "sleep 60", "/tmp", nil)
	e.mu.Lock()
	e.killed = true // running stays true; only the killed flag is set
	e.mu.Unlock()
	require.False(t, e.IsRunning())
}

func TestCommandReturnsLaunchCommand(t *testing.T) {
	e := NewEntry(nil, "sleep 60", "/tmp", nil)
	require.Equal(t, "sleep 60", e.Command())
}

func TestRegistryPutGetDelete(t *testing.T) {
	r := New()
	require.Nil(t, r.Get("t1"))

	e := NewEntry(nil, "sleep 60", "/tmp", nil)
	r.Put("t1", e)
	require.Same(t, e, r.Get("t1"))

	r.Delete("t1")
	require.Nil(t, r.Get("t1"))
}

func TestRegistryAllReturnsSnapshotCopy(t *testing.T) {
	r := New()
	r.Put("t1", NewEntry(nil, "a", "/tmp", nil))
	r.Put("t2", NewEntry(nil, "b", "/tmp", nil))

	all := r.All()
	require.Len(t, all, 2)

	r.Delete("t1")
	require.Len(t, all, 2, "snapshot must not observe later mutation")
	require.Len(t, r.All(), 1)
}

func TestTaskLockReturnsSameMutexForSameID(t *testing.T) {
	r := New()
	l1 := r.TaskLock("t1")
	l2 := r.TaskLock("t1")
	require.Same(t, l1, l2)

	l3 := r.TaskLock("t2")
	require.NotSame(t, l1, l3)
}
