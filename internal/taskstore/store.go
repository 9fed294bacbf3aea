// Package taskstore is the durable Task Store: a single JSON document under
// <base>/task/tasks.json holding task configuration only. Runtime fields
// (status, pid) are never part of model.Task, so they cannot leak into the
// file regardless of what a caller submits (encoding/json silently drops
// unknown struct-less fields on decode and never emits fields the struct
// doesn't declare), so every write is free of runtime fields without an
// explicit strip step.
//
// Grounded on the teacher's internal/store package (single entry point,
// EnsureSchema-style init, best-effort persistence contract) adapted from a
// SQL store to a flat JSON document per spec.md §4.1.
package taskstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procpanel/tasksupervisor/internal/model"
)

// Store is the durable task configuration store.
type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// New returns a Store backed by the JSON file at path. The parent directory
// must already exist (see config.TaskDir).
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, log: logger}
}

// List returns all tasks, sorted by id for stable output.
func (s *Store) List() ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Get returns the task with id, or ok=false if absent.
func (s *Store) Get(id string) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return model.Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return model.Task{}, false, nil
}

// Create inserts task, generating an id if absent, and stamping
// created/updated timestamps. If a task with the given id already exists,
// Create returns that existing task unchanged rather than appending a
// duplicate (spec.md §6 "created (or existing, by id) task", P2 id
// uniqueness).
func (s *Store) Create(t model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return model.Task{}, err
	}
	if t.ID != "" {
		for _, existing := range tasks {
			if existing.ID == t.ID {
				return existing, nil
			}
		}
	} else {
		t.ID = GenerateID()
	}
	now := time.Now().UTC()
	t.CreatedDate = now
	t.UpdatedDate = now
	tasks = append(tasks, t)
	if err := s.writeLocked(tasks); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// Update applies patch fields onto the stored task (whole-record replace
// semantics at the field values the caller supplied) and bumps
// updated_date. Returns the merged task, or ok=false if id is unknown.
func (s *Store) Update(id string, patch model.Task) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return model.Task{}, false, err
	}
	for i, t := range tasks {
		if t.ID != id {
			continue
		}
		merged := mergeTask(t, patch)
		merged.ID = id
		merged.CreatedDate = t.CreatedDate
		merged.UpdatedDate = time.Now().UTC()
		tasks[i] = merged
		if err := s.writeLocked(tasks); err != nil {
			return model.Task{}, false, err
		}
		return merged, true, nil
	}
	return model.Task{}, false, nil
}

// UpdateFields applies fn to the stored task under the store lock without
// touching updated_date, used by guardian bookkeeping (spec.md §4.6: "the
// guardian never updates updated_date when only updating counters").
func (s *Store) UpdateFields(id string, fn func(*model.Task)) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return model.Task{}, false, err
	}
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		fn(&tasks[i])
		if err := s.writeLocked(tasks); err != nil {
			return model.Task{}, false, err
		}
		return tasks[i], true, nil
	}
	return model.Task{}, false, nil
}

// Delete removes the task with id. Returns ok=false if it was absent.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return false, err
	}
	out := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.ID == id {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return false, nil
	}
	if err := s.writeLocked(out); err != nil {
		return false, err
	}
	return true, nil
}

// Dedupe collapses duplicate ids, keeping the entry with the latest
// updated_date for each id (spec.md P3).
func (s *Store) Dedupe() (removed, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readLocked()
	if err != nil {
		return 0, 0, err
	}
	deduped := dedupeTasks(tasks)
	removed = len(tasks) - len(deduped)
	if removed > 0 {
		if err := s.writeLocked(deduped); err != nil {
			return 0, 0, err
		}
	}
	return removed, len(deduped), nil
}

func dedupeTasks(tasks []model.Task) []model.Task {
	best := make(map[string]model.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		cur, ok := best[t.ID]
		if !ok {
			order = append(order, t.ID)
			best[t.ID] = t
			continue
		}
		if t.UpdatedDate.After(cur.UpdatedDate) {
			best[t.ID] = t
		}
	}
	out := make([]model.Task, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// mergeTask applies non-zero-value fields of patch onto base. Slice/map
// fields and booleans are overwritten wholesale when the patch sets them
// (patch is the caller's full desired sub-state for those fields).
func mergeTask(base, patch model.Task) model.Task {
	out := base
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.Group != "" {
		out.Group = patch.Group
	}
	if patch.Category != "" {
		out.Category = patch.Category
	}
	if patch.Notes != "" {
		out.Notes = patch.Notes
	}
	if patch.WorkingDirectory != "" {
		out.WorkingDirectory = patch.WorkingDirectory
	}
	if patch.StartCommand != "" {
		out.StartCommand = patch.StartCommand
	}
	if patch.StopCommand != "" {
		out.StopCommand = patch.StopCommand
	}
	if patch.Port != 0 {
		out.Port = patch.Port
	}
	if patch.EnvironmentVars != nil {
		out.EnvironmentVars = patch.EnvironmentVars
	}
	out.AutoRestart = patch.AutoRestart
	if patch.MaxRestarts != 0 {
		out.MaxRestarts = patch.MaxRestarts
	}
	if patch.RestartInterval != 0 {
		out.RestartInterval = patch.RestartInterval
	}
	if patch.ScheduledStart != "" {
		out.ScheduledStart = patch.ScheduledStart
	}
	if patch.ScheduledStop != "" {
		out.ScheduledStop = patch.ScheduledStop
	}
	return out
}

func (s *Store) readLocked() ([]model.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.log.Error("task store read failed", "path", s.path, "error", err)
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.log.Error("task store parse failed", "path", s.path, "error", err)
		return nil, nil
	}
	return tasks, nil
}

func (s *Store) writeLocked(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.log.Error("task store write failed", "path", s.path, "error", err)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("task store rename failed", "path", s.path, "error", err)
		return err
	}
	return nil
}

// GenerateID builds a task id as "proj_" + a UUID-derived opaque suffix,
// matching spec.md's "proj_" + unique-suffix contract while reusing
// github.com/google/uuid (already an indirect teacher dependency) instead
// of hand-rolled randomness.
func GenerateID() string {
	return "proj_" + uuid.New().String()
}
