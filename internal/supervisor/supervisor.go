// Package supervisor implements the start/stop/restart state machine: it
// orchestrates the Shell Launcher and Process Registry, enforces the
// startup validation window, and keeps the Task Store's
// was_running_before_shutdown/restart_count/last_started fields in sync.
//
// Grounded on the teacher's internal/manager/handler.go control loop
// (ctrlStart racing spawn-error/self-exit/timeout) and internal/process/process.go
// (Start/Stop/tree-kill sequencing), simplified from the teacher's
// channel-actor design to direct synchronous calls serialized by
// registry.Registry.TaskLock, since this spec has no per-process supervisor
// goroutine or instance-group fan-out to coordinate.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/procpanel/tasksupervisor/internal/config"
	"github.com/procpanel/tasksupervisor/internal/history"
	"github.com/procpanel/tasksupervisor/internal/launcher"
	"github.com/procpanel/tasksupervisor/internal/model"
	"github.com/procpanel/tasksupervisor/internal/registry"
	"github.com/procpanel/tasksupervisor/internal/taskstore"
)

// DefaultStartupTimeout is the default startup validation window (spec.md §4.5).
const DefaultStartupTimeout = 2000 * time.Millisecond

// Supervisor orchestrates lifecycle operations for tasks.
type Supervisor struct {
	store   *taskstore.Store
	reg     *registry.Registry
	baseDir string
	log     *slog.Logger
	hist    *history.Sink // optional audit trail; nil unless SetHistorySink is called
}

// New builds a Supervisor wired to store, reg, and the resolved base
// directory used for working-directory fallback.
func New(store *taskstore.Store, reg *registry.Registry, baseDir string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{store: store, reg: reg, baseDir: baseDir, log: logger}
}

// SetHistorySink attaches an optional SQLite audit sink. Lifecycle events
// are recorded best-effort; a nil sink (the default) disables recording
// entirely.
func (s *Supervisor) SetHistorySink(h *history.Sink) {
	s.hist = h
}

func (s *Supervisor) recordHistory(taskID, kind string, pid int, detail string) {
	if s.hist == nil {
		return
	}
	if err := s.hist.Record(context.Background(), history.Event{
		TaskID:     taskID,
		Kind:       kind,
		PID:        pid,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("history record failed", "task", taskID, "kind", kind, "error", err)
	}
}

// StartRequest is the input to Start/Restart.
type StartRequest struct {
	ID                 string
	StartCommand       string
	WorkingDirectory   string
	EnvironmentVars    map[string]string
	StartupTimeoutMS   int
}

// StartResult is the outcome of a start attempt.
type StartResult struct {
	OK     bool
	PID    int
	Code   int
	Signal string
	Err    error
	Stdout []string
	Stderr []string
}

// ErrValidation marks a request rejected before any process was spawned.
var ErrValidation = errors.New("validation error")

// Start implements spec.md §4.5's start operation: terminate any existing
// live child for id, spawn the new command, and race the startup window.
func (s *Supervisor) Start(req StartRequest) StartResult {
	if req.ID == "" || req.StartCommand == "" {
		return StartResult{OK: false, Err: fmt.Errorf("%w: id and start_command are required", ErrValidation)}
	}

	lock := s.reg.TaskLock(req.ID)
	lock.Lock()
	defer lock.Unlock()

	// Any start attempt, successful or not, is the new "last user action":
	// manual_stopped must not keep suppressing the guardian past this point
	// (spec.md §3 "manual_stopped... true iff the last user action was Stop").
	if _, ok, err := s.store.UpdateFields(req.ID, func(t *model.Task) {
		t.ManualStopped = false
	}); err != nil || !ok {
		s.log.Warn("failed to clear manual_stopped", "task", req.ID, "ok", ok, "error", err)
	}

	s.terminateExisting(req.ID)

	workDir := config.ResolveWorkingDirectory(s.baseDir, req.WorkingDirectory)
	env := mergeEnv(os.Environ(), req.EnvironmentVars)

	handle, err := launcher.Spawn(req.StartCommand, workDir, env)
	if err != nil {
		s.log.Error("spawn failed", "task", req.ID, "error", err)
		return StartResult{OK: false, Err: err}
	}

	entry := registry.NewEntry(handle, req.StartCommand, workDir, env)
	s.reg.Put(req.ID, entry)

	if _, ok, err := s.store.UpdateFields(req.ID, func(t *model.Task) {
		t.WasRunningBeforeShutdown = true
	}); err != nil || !ok {
		s.log.Warn("failed to flag was_running_before_shutdown", "task", req.ID, "ok", ok, "error", err)
	}

	buffers := entry.Buffers()
	go drainInto(handle.StdoutLines(), buffers.Stdout)
	go drainInto(handle.StderrLines(), buffers.Stderr)

	// watch owns the single permitted handle.Wait() call for this entry: it
	// marks the entry exited whenever the child actually dies, whether that
	// happens inside or long after the startup window (e.g. a later crash,
	// or a kill delivered through /api/processes/kill). Without this, a
	// child that survives the window but dies later would leave the
	// registry reporting running=true forever.
	exitCh := s.watch(req.ID, handle, entry)

	result := s.awaitStartupWindow(handle, entry, exitCh, startupTimeout(req.StartupTimeoutMS))

	if result.OK {
		now := time.Now().UTC()
		if _, ok, err := s.store.UpdateFields(req.ID, func(t *model.Task) {
			t.LastStarted = &now
			t.RestartCount = 0
		}); err != nil || !ok {
			s.log.Warn("failed to record last_started", "task", req.ID, "ok", ok, "error", err)
		}
		s.recordHistory(req.ID, "start", result.PID, "")
	} else {
		s.recordHistory(req.ID, "start_failed", 0, result.Signal)
	}

	return result
}

// watch runs handle.Wait() exactly once in the background for the lifetime
// of entry, marking it exited and recording history as soon as the child
// actually terminates. It also delivers the same ExitInfo on the returned
// channel, which awaitStartupWindow consumes if the child dies inside the
// startup window; if the window elapses first, the channel is simply left
// unread and this goroutine keeps running until the eventual exit.
func (s *Supervisor) watch(id string, handle *launcher.Handle, entry *registry.Entry) <-chan launcher.ExitInfo {
	exitCh := make(chan launcher.ExitInfo, 1)
	go func() {
		info := handle.Wait()
		entry.MarkExited(info.Code, info.Signal, false)
		s.recordHistory(id, "exit", 0, info.Signal)
		exitCh <- info
	}()
	return exitCh
}

// awaitStartupWindow races child-exit against the timeout, matching
// spec.md §9's select (spawn-error is surfaced synchronously by the caller
// before this is ever reached).
func (s *Supervisor) awaitStartupWindow(handle *launcher.Handle, entry *registry.Entry, exitCh <-chan launcher.ExitInfo, window time.Duration) StartResult {
	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case info := <-exitCh:
		return exitResult(entry, info)
	case <-timer.C:
		select {
		case info := <-exitCh:
			return exitResult(entry, info)
		default:
			return StartResult{OK: true, PID: handle.PID}
		}
	}
}

func exitResult(entry *registry.Entry, info launcher.ExitInfo) StartResult {
	buf := entry.Buffers()
	return StartResult{
		OK:     false,
		Code:   info.Code,
		Signal: info.Signal,
		Err:    info.Err,
		Stdout: buf.Stdout.Snapshot(),
		Stderr: buf.Stderr.Snapshot(),
	}
}

// terminateExisting tree-terminates any currently running live entry for id
// before a new one replaces it (spec.md §4.5 idempotence).
func (s *Supervisor) terminateExisting(id string) {
	existing := s.reg.Get(id)
	if existing == nil || !existing.IsRunning() {
		return
	}
	if h := existing.Handle(); h != nil {
		if err := h.TreeTerminate("SIGTERM"); err != nil {
			s.log.Warn("terminate existing entry failed", "task", id, "error", err)
		}
		<-h.WaitDone()
	}
	existing.MarkExited(-1, "SIGTERM", true)
}

// StopRequest is the input to Stop.
type StopRequest struct {
	ID               string
	StopCommand      string
	WorkingDirectory string
	EnvironmentVars  map[string]string
}

// StopResult is the outcome of a stop attempt.
type StopResult struct {
	OK      bool
	Message string
	Err     error
	Stdout  []string
	Stderr  []string
}

// Stop implements spec.md §4.5's stop operation: tree-terminate the live
// child, falling through to stop_command if tree-kill errors or no live
// child exists.
func (s *Supervisor) Stop(req StopRequest) StopResult {
	if req.ID == "" {
		return StopResult{OK: false, Err: fmt.Errorf("%w: id is required", ErrValidation)}
	}

	lock := s.reg.TaskLock(req.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := s.store.UpdateFields(req.ID, func(t *model.Task) {
		t.ManualStopped = true
	}); err != nil || !ok {
		s.log.Warn("failed to flag manual_stopped", "task", req.ID, "ok", ok, "error", err)
	}

	entry := s.reg.Get(req.ID)
	if entry != nil && entry.IsRunning() {
		h := entry.Handle()
		if err := h.TreeTerminate("SIGTERM"); err != nil {
			s.log.Warn("tree terminate failed, falling back to stop_command", "task", req.ID, "error", err)
		} else {
			<-h.WaitDone()
			entry.MarkExited(-1, "SIGTERM", true)
			s.recordHistory(req.ID, "stop", 0, "")
			return StopResult{OK: true}
		}
	}

	if req.StopCommand == "" {
		return StopResult{OK: true, Message: "not running"}
	}

	workDir := config.ResolveWorkingDirectory(s.baseDir, req.WorkingDirectory)
	env := mergeEnv(os.Environ(), req.EnvironmentVars)
	handle, err := launcher.Spawn(req.StopCommand, workDir, env)
	if err != nil {
		return StopResult{OK: false, Err: err}
	}
	go drainDiscard(handle.StdoutLines())
	go drainDiscard(handle.StderrLines())
	info := handle.Wait()
	if info.Code != 0 || info.Err != nil {
		return StopResult{OK: false, Err: fmt.Errorf("stop_command exited with code %d: %v", info.Code, info.Err)}
	}
	return StopResult{OK: true}
}

// RestartRequest is the input to Restart.
type RestartRequest struct {
	ID                 string
	StartCommand       string
	StopCommand        string
	WorkingDirectory   string
	EnvironmentVars    map[string]string
	StartupTimeoutMS   int
}

// Restart implements spec.md §4.5's restart operation: stop then start,
// reusing the previous live command when StartCommand is absent.
func (s *Supervisor) Restart(req RestartRequest) StartResult {
	startCmd := req.StartCommand
	if startCmd == "" {
		if entry := s.reg.Get(req.ID); entry != nil {
			startCmd = entry.Command()
		}
	}
	if startCmd == "" {
		return StartResult{OK: false, Err: fmt.Errorf("%w: no start_command available to restart", ErrValidation)}
	}

	s.Stop(StopRequest{
		ID:               req.ID,
		StopCommand:      req.StopCommand,
		WorkingDirectory: req.WorkingDirectory,
		EnvironmentVars:  req.EnvironmentVars,
	})

	// Start already clears manual_stopped on every attempt and, on success,
	// resets restart_count and stamps last_started, so Restart needs no
	// bookkeeping of its own beyond stopping the previous child first.
	return s.Start(StartRequest{
		ID:               req.ID,
		StartCommand:     startCmd,
		WorkingDirectory: req.WorkingDirectory,
		EnvironmentVars:  req.EnvironmentVars,
		StartupTimeoutMS: req.StartupTimeoutMS,
	})
}

// Status returns the derived running status for id.
func (s *Supervisor) Status(id string) model.Status {
	entry := s.reg.Get(id)
	if entry == nil {
		return model.Status{Running: false, Status: model.StatusStopped}
	}
	snap := entry.Snapshot()
	running := entry.IsRunning()
	status := model.Status{Running: running, Status: model.StatusStopped}
	if running {
		status.Status = model.StatusRunning
		pid := snap.PID
		status.PID = &pid
	}
	return status
}

// Logs returns the current stdout/stderr snapshots for id's live entry.
func (s *Supervisor) Logs(id string) (stdout, stderr []string) {
	entry := s.reg.Get(id)
	if entry == nil {
		return []string{}, []string{}
	}
	buf := entry.Buffers()
	return buf.Stdout.Snapshot(), buf.Stderr.Snapshot()
}

// ClearLogs empties both buffers for id's live entry without touching the child.
func (s *Supervisor) ClearLogs(id string) {
	entry := s.reg.Get(id)
	if entry == nil {
		return
	}
	entry.Buffers().Clear()
}

// ShutdownAll tree-terminates every live entry, used on SIGINT/SIGTERM
// (spec.md §5 Shutdown).
func (s *Supervisor) ShutdownAll() {
	for id, entry := range s.reg.All() {
		if !entry.IsRunning() {
			continue
		}
		h := entry.Handle()
		if h == nil {
			continue
		}
		if err := h.TreeTerminate("SIGTERM"); err != nil {
			s.log.Warn("shutdown terminate failed", "task", id, "error", err)
			continue
		}
		<-h.WaitDone()
		entry.MarkExited(-1, "SIGTERM", true)
	}
}

func startupTimeout(ms int) time.Duration {
	if ms <= 0 {
		return DefaultStartupTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// mergeEnv applies task env vars onto parent env, task wins on conflict
// (spec.md §4.5 "parent env first, then explicit task environment").
func mergeEnv(parent []string, task map[string]string) []string {
	if len(task) == 0 {
		return parent
	}
	merged := make(map[string]string, len(parent)+len(task))
	for _, kv := range parent {
		if i := indexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range task {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func drainInto(lines <-chan string, buf interface{ Append(string) }) {
	for line := range lines {
		buf.Append(line)
	}
}

func drainDiscard(lines <-chan string) {
	for range lines {
	}
}
