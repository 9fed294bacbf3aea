// Package model defines the persisted and runtime shapes shared across the
// task supervisor: the durable Task configuration and the in-memory status
// view returned to HTTP clients.
package model

import "time"

// Category is a small enumeration of task groupings; free-form beyond that.
type Category string

const (
	CategoryService Category = "service"
	CategoryJob     Category = "job"
	CategoryTool    Category = "tool"
	CategoryOther   Category = "other"
)

// Task is the durable configuration for a supervised command. Status and
// RuntimePID are intentionally absent here: they are runtime-only and are
// carried on Status, never persisted (see taskstore.Store).
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Group       string `json:"group"`
	Category    string `json:"category"`
	Notes       string `json:"notes"`

	WorkingDirectory string            `json:"working_directory"`
	StartCommand     string            `json:"start_command"`
	StopCommand      string            `json:"stop_command"`
	Port             int               `json:"port,omitempty"`
	EnvironmentVars  map[string]string `json:"environment_variables"`

	AutoRestart     bool `json:"auto_restart"`
	MaxRestarts     int  `json:"max_restarts"`
	RestartInterval int  `json:"restart_interval"` // seconds
	RestartCount    int  `json:"restart_count"`

	ManualStopped            bool `json:"manual_stopped"`
	WasRunningBeforeShutdown bool `json:"was_running_before_shutdown"`

	// scheduled_start/scheduled_stop are carried for data-model compatibility;
	// no scheduler in this core reads them (see Non-goals).
	ScheduledStart string `json:"scheduled_start,omitempty"`
	ScheduledStop  string `json:"scheduled_stop,omitempty"`

	LastStarted *time.Time `json:"last_started,omitempty"`
	CreatedDate time.Time  `json:"created_date"`
	UpdatedDate time.Time  `json:"updated_date"`
}

// Clone returns a deep-enough copy safe to mutate independently of the
// original (environment map and last_started are copied; other fields are
// value types).
func (t Task) Clone() Task {
	out := t
	if t.EnvironmentVars != nil {
		out.EnvironmentVars = make(map[string]string, len(t.EnvironmentVars))
		for k, v := range t.EnvironmentVars {
			out.EnvironmentVars[k] = v
		}
	}
	if t.LastStarted != nil {
		ls := *t.LastStarted
		out.LastStarted = &ls
	}
	return out
}

// Status is the runtime view of a task returned by the HTTP API. It is
// never persisted by the task store.
type Status struct {
	Running bool   `json:"running"`
	Status  string `json:"status"` // "running" | "stopped"
	PID     *int   `json:"pid"`
}

const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)
