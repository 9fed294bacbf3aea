// Package guardian implements the auto-restart loop: a 5 s ticker that
// consults the Task Store and Process Registry and restarts eligible tasks
// subject to manual-stop suppression, a restart cap, and backoff.
//
// Grounded on the teacher's internal/manager reconcile sweep
// (periodic pass over configured specs, comparing desired vs actual state)
// adapted to spec.md §4.6's single eligibility predicate and per-id
// next-attempt bookkeeping, since the teacher's reconcile loop has no
// backoff/cap semantics of its own.
package guardian

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/procpanel/tasksupervisor/internal/model"
	"github.com/procpanel/tasksupervisor/internal/registry"
	"github.com/procpanel/tasksupervisor/internal/supervisor"
	"github.com/procpanel/tasksupervisor/internal/taskstore"
)

// DefaultTick is the guardian's polling interval (spec.md §4.6).
const DefaultTick = 5 * time.Second

// Guardian periodically restarts eligible tasks after unexpected exit.
type Guardian struct {
	store *taskstore.Store
	reg   *registry.Registry
	sup   *supervisor.Supervisor
	log   *slog.Logger
	tick  time.Duration

	mu          sync.Mutex
	nextAttempt map[string]time.Time

	onRestartSuccess func(id string)
	onRestartFailure func(id string)
}

// New builds a Guardian wired to store, reg, and sup, ticking every tick
// (or DefaultTick if tick <= 0).
func New(store *taskstore.Store, reg *registry.Registry, sup *supervisor.Supervisor, tick time.Duration, logger *slog.Logger) *Guardian {
	if tick <= 0 {
		tick = DefaultTick
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardian{
		store:       store,
		reg:         reg,
		sup:         sup,
		log:         logger,
		tick:        tick,
		nextAttempt: make(map[string]time.Time),
	}
}

// OnRestartSuccess/OnRestartFailure register optional metrics hooks.
func (g *Guardian) OnRestartSuccess(fn func(id string)) { g.onRestartSuccess = fn }
func (g *Guardian) OnRestartFailure(fn func(id string)) { g.onRestartFailure = fn }

// ClearState forgets any pending backoff for id; called by the HTTP control
// plane (httpapi.Router) on any user action (start, stop, restart) per
// spec.md §4.6.
func (g *Guardian) ClearState(id string) {
	g.mu.Lock()
	delete(g.nextAttempt, id)
	g.mu.Unlock()
}

// Run blocks ticking until ctx is cancelled.
func (g *Guardian) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tickOnce()
		}
	}
}

func (g *Guardian) tickOnce() {
	tasks, err := g.store.List()
	if err != nil {
		g.log.Error("guardian list failed", "error", err)
		return
	}
	now := time.Now().UTC()
	for _, t := range tasks {
		if !g.eligible(t, now) {
			continue
		}
		g.attempt(t)
	}
}

// eligible implements spec.md §4.6's eligibility predicate.
func (g *Guardian) eligible(t model.Task, now time.Time) bool {
	if !t.AutoRestart || t.ManualStopped || !t.WasRunningBeforeShutdown {
		return false
	}
	if entry := g.reg.Get(t.ID); entry != nil && entry.IsRunning() {
		return false
	}
	if t.MaxRestarts > 0 && t.RestartCount >= t.MaxRestarts {
		return false
	}
	g.mu.Lock()
	next, ok := g.nextAttempt[t.ID]
	g.mu.Unlock()
	if ok && now.Before(next) {
		return false
	}
	return true
}

func (g *Guardian) attempt(t model.Task) {
	if t.StartCommand == "" {
		g.log.Warn("guardian skipping task with no start_command", "task", t.ID)
		return
	}
	result := g.sup.Start(supervisor.StartRequest{
		ID:               t.ID,
		StartCommand:     t.StartCommand,
		WorkingDirectory: t.WorkingDirectory,
		EnvironmentVars:  t.EnvironmentVars,
	})
	if result.OK {
		g.recordSuccess(t.ID)
		if g.onRestartSuccess != nil {
			g.onRestartSuccess(t.ID)
		}
		return
	}
	g.recordFailure(t)
	if g.onRestartFailure != nil {
		g.onRestartFailure(t.ID)
	}
}

// recordSuccess implements spec.md §4.6 step 2.
func (g *Guardian) recordSuccess(id string) {
	now := time.Now().UTC()
	if _, ok, err := g.store.UpdateFields(id, func(t *model.Task) {
		t.RestartCount = 0
		t.ManualStopped = false
		t.LastStarted = &now
		t.WasRunningBeforeShutdown = true
	}); err != nil || !ok {
		g.log.Warn("guardian success bookkeeping failed", "task", id, "ok", ok, "error", err)
	}
	g.ClearState(id)
}

// recordFailure implements spec.md §4.6 step 3.
func (g *Guardian) recordFailure(t model.Task) {
	interval := t.RestartInterval
	if interval < 1 {
		interval = 1
	}
	next := time.Now().UTC().Add(time.Duration(interval) * time.Second)

	updated, ok, err := g.store.UpdateFields(t.ID, func(mt *model.Task) {
		mt.RestartCount++
	})
	if err != nil || !ok {
		g.log.Warn("guardian failure bookkeeping failed", "task", t.ID, "error", err)
		return
	}

	g.mu.Lock()
	g.nextAttempt[t.ID] = next
	g.mu.Unlock()

	if updated.MaxRestarts > 0 && updated.RestartCount >= updated.MaxRestarts {
		g.log.Info("guardian restart cap reached, giving up", "task", t.ID, "restart_count", updated.RestartCount, "max_restarts", updated.MaxRestarts)
	}
}
