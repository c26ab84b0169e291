package fleet

import (
	"fmt"
	"time"
)

// Task is one unit of work owned by a single agent. Tasks carry dependency
// edges to other tasks; a task is blocked exactly while at least one
// dependency is not done. The blocked classification is derived by the task
// engine, never set by clients.
type Task struct {
	ID           string       `json:"id" yaml:"id"`
	AgentID      string       `json:"agent_id" yaml:"agent_id"`
	Title        string       `json:"title" yaml:"title"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	Status       TaskStatus   `json:"status" yaml:"status"`
	Priority     Priority     `json:"priority" yaml:"priority"`
	Dependencies []string     `json:"dependencies,omitempty" yaml:"dependencies,omitempty"` // Task IDs that must reach done first
	RequestedBy  string       `json:"requested_by,omitempty" yaml:"requested_by,omitempty"` // Delegating agent, empty for direct creation
	Progress     int          `json:"progress" yaml:"progress"`                             // 0..100
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" yaml:"updated_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// TaskStatus is the lifecycle state of a task.
//
// Transitions: todo → inprogress (explicit start), inprogress → done
// (completion), todo|inprogress → blocked (derived from dependencies, and
// cleared back once all dependencies are done), todo → cancelled (terminal).
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "inprogress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Validate checks if the TaskStatus is a valid enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone,
		TaskStatusBlocked, TaskStatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Reason: "cannot be empty"}
	}
	if !ValidAgentID(t.AgentID) {
		return &ValidationError{Field: "agent_id", Reason: "must match [A-Za-z0-9_-]{1,50}"}
	}
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "cannot be empty"}
	}
	if err := t.Status.Validate(); err != nil {
		return &ValidationError{Field: "status", Reason: err.Error()}
	}
	if err := t.Priority.Validate(); err != nil {
		return &ValidationError{Field: "priority", Reason: err.Error()}
	}
	if t.Progress < 0 || t.Progress > 100 {
		return &ValidationError{Field: "progress", Reason: fmt.Sprintf("must be within [0,100], got %d", t.Progress)}
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		out.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}
