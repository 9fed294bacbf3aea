// Package registry holds the in-memory Process Registry: the mapping from
// task id to its live entry (child handle, buffers, last exit info). It is
// the runtime source of truth, distinct from the durable Task Store.
//
// Grounded on the teacher's per-name handler/procEntry map in
// internal/manager/manager.go, simplified to a plain guarded map since this
// spec's contract does not need the teacher's control-channel actor: a
// per-id mutex (TaskLock) is enough to serialize start/stop/restart per task
// id (spec.md §5, "serialized per task id").
package registry

import (
	"sync"
	"time"

	"github.com/procpanel/tasksupervisor/internal/launcher"
	"github.com/procpanel/tasksupervisor/internal/ring"
)

// Entry is the live runtime state for one task, current or most recently run.
type Entry struct {
	mu sync.Mutex

	handle  *launcher.Handle
	command string
	workDir string
	env     []string

	running   bool
	startedAt time.Time
	exitCode  int
	exitSig   string
	killed    bool

	buffers ring.Pair
}

// NewEntry creates a fresh live entry wrapping handle, with new buffers.
func NewEntry(handle *launcher.Handle, command, workDir string, env []string) *Entry {
	return &Entry{
		handle:    handle,
		command:   command,
		workDir:   workDir,
		env:       env,
		running:   true,
		startedAt: time.Now(),
		buffers:   ring.NewPair(),
	}
}

// Buffers returns the stdout/stderr ring buffers for this entry.
func (e *Entry) Buffers() ring.Pair { return e.buffers }

// Handle returns the underlying launcher handle.
func (e *Entry) Handle() *launcher.Handle { return e.handle }

// Command returns the command string this entry was launched with, used by
// restart to reuse the previous command when none is supplied.
func (e *Entry) Command() string { return e.command }

// MarkExited records that the child has exited (naturally or via signal).
func (e *Entry) MarkExited(code int, signal string, killed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.exitCode = code
	e.exitSig = signal
	e.killed = killed
}

// Snapshot returns a point-in-time view used to compute HTTP status.
type Snapshot struct {
	Running   bool
	PID       int
	StartedAt time.Time
	ExitCode  int
	ExitSig   string
	Killed    bool
}

func (e *Entry) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	pid := 0
	if e.handle != nil {
		pid = e.handle.PID
	}
	return Snapshot{
		Running:   e.running,
		PID:       pid,
		StartedAt: e.startedAt,
		ExitCode:  e.exitCode,
		ExitSig:   e.exitSig,
		Killed:    e.killed,
	}
}

// IsRunning reports the derived running status per spec.md §4.3: a live
// entry exists and its child has not exited and was not killed.
func (e *Entry) IsRunning() bool {
	s := e.Snapshot()
	return s.Running && !s.Killed
}

// Registry is the thread-safe id -> live entry map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	locks   map[string]*sync.Mutex
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry), locks: make(map[string]*sync.Mutex)}
}

// TaskLock returns the per-id mutex used to serialize start/stop/restart so
// a Stop racing a concurrent Start cannot leak a zombie live entry
// (spec.md §5). Callers must Unlock what they Lock.
func (r *Registry) TaskLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Get returns the live entry for id, or nil if none exists.
func (r *Registry) Get(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// Put replaces the live entry for id (used by start/restart: the previous
// entry, if any, must already have been terminated by the caller).
func (r *Registry) Put(id string, e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// Delete removes the live entry for id.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// All returns a snapshot copy of the id -> entry map.
func (r *Registry) All() map[string]*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Entry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// RunningCount reports how many live entries currently consider themselves
// running, for the tasks_running gauge.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.IsRunning() {
			n++
		}
	}
	return n
}
