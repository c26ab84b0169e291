// Package taskboard is the task lifecycle engine: per-agent task records
// with dependency-gated status, kept canonical in memory and persisted to
// one human-readable markdown board per agent. Every mutation rewrites the
// board; external board edits are picked up wholesale by the watcher.
package taskboard

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warrenhq/warren/internal/notify"
	"github.com/warrenhq/warren/pkg/fleet"
)

// AgentChecker validates that an agent ID exists. The registry satisfies it;
// the engine depends on nothing else from the registry.
type AgentChecker interface {
	Exists(id string) bool
}

// Options configures an Engine.
type Options struct {
	// Notifier receives task_created / task_completed events. Nil disables.
	Notifier *notify.Fanout

	// Now is swappable for tests.
	Now func() time.Time
}

// Engine owns the canonical in-memory task model behind one serializing
// lock. Dependency-driven status recomputation happens synchronously inside
// the same locked step as the triggering transition, so a reader never
// observes a stale blocked task once its dependencies are done.
type Engine struct {
	mu      sync.Mutex
	dir     string
	tasks   map[string]*fleet.Task
	checker AgentChecker

	notifier *notify.Fanout
	now      func() time.Time

	// fileStates records the board files as last written or loaded so the
	// watcher can tell external edits from the engine's own writes.
	fileStates map[string]fileState
}

type fileState struct {
	modTime time.Time
	size    int64
}

// NewEngine creates an engine over a board directory, loading any existing
// board files. A board file that fails to parse on startup is skipped with a
// log line rather than failing the whole engine.
func NewEngine(dir string, checker AgentChecker, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create board directory: %w", err)
	}

	e := &Engine{
		dir:        dir,
		tasks:      make(map[string]*fleet.Task),
		checker:    checker,
		notifier:   opts.Notifier,
		now:        opts.Now,
		fileStates: make(map[string]fileState),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read board directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.loadBoardFile(path); err != nil {
			log.Printf("[TaskBoard] Skipping unreadable board %s: %v", entry.Name(), err)
		}
	}

	// Boards may have been edited while no engine was running.
	if touched := e.resyncDerivedLocked(); len(touched) > 0 {
		if err := e.persistAgentsLocked(touched); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// CreateTaskRequest is the caller-supplied part of a new task.
type CreateTaskRequest struct {
	AgentID      string
	Title        string
	Description  string
	Priority     fleet.Priority
	Dependencies []string
	RequestedBy  string
}

// CreateTask validates the request, derives the initial status (todo, or
// blocked if a dependency is incomplete), persists the owning agent's board,
// and returns the new task. Dangling dependency IDs fail with
// fleet.ErrNotFound; a dependency cycle fails with
// fleet.ErrCircularDependency. Nothing is persisted on failure.
func (e *Engine) CreateTask(req CreateTaskRequest) (*fleet.Task, error) {
	if req.AgentID == "" {
		return nil, &fleet.ValidationError{Field: "agent_id", Reason: "cannot be empty"}
	}
	if req.Title == "" {
		return nil, &fleet.ValidationError{Field: "title", Reason: "cannot be empty"}
	}
	if e.checker != nil && !e.checker.Exists(req.AgentID) {
		return nil, fmt.Errorf("agent %s: %w", req.AgentID, fleet.ErrNotFound)
	}
	if req.Priority == "" {
		req.Priority = fleet.PriorityMedium
	}
	if err := req.Priority.Validate(); err != nil {
		return nil, &fleet.ValidationError{Field: "priority", Reason: err.Error()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.New().String()
	if err := e.checkDependenciesLocked(id, req.Dependencies); err != nil {
		return nil, err
	}

	now := e.boardNow()
	task := &fleet.Task{
		ID:           id,
		AgentID:      req.AgentID,
		Title:        req.Title,
		Description:  req.Description,
		Status:       fleet.TaskStatusTodo,
		Priority:     req.Priority,
		Dependencies: append([]string(nil), req.Dependencies...),
		RequestedBy:  req.RequestedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	task.Status = e.deriveStatusLocked(task)

	e.tasks[id] = task
	if err := e.persistAgentLocked(task.AgentID); err != nil {
		delete(e.tasks, id)
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.Publish(context.Background(), notify.TaskCreated{
			TaskID: id, AgentID: task.AgentID, RequestedBy: task.RequestedBy, Time: now,
		})
	}

	return task.Clone(), nil
}

// DelegateTask creates a task owned by toAgent on fromAgent's request.
func (e *Engine) DelegateTask(fromAgent, toAgent string, req CreateTaskRequest) (*fleet.Task, error) {
	if e.checker != nil && !e.checker.Exists(fromAgent) {
		return nil, fmt.Errorf("agent %s: %w", fromAgent, fleet.ErrNotFound)
	}
	req.AgentID = toAgent
	req.RequestedBy = fromAgent
	return e.CreateTask(req)
}

// TaskUpdate is a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Priority     *fleet.Priority
	Progress     *int
	Dependencies []string
}

// UpdateTask merges the partial update. Changing dependencies re-validates
// existence and acyclicity and re-derives blocked status for the task and
// its dependents.
func (e *Engine) UpdateTask(id string, update TaskUpdate) (*fleet.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, fleet.ErrNotFound)
	}

	if update.Priority != nil {
		if err := update.Priority.Validate(); err != nil {
			return nil, &fleet.ValidationError{Field: "priority", Reason: err.Error()}
		}
	}
	if update.Progress != nil && (*update.Progress < 0 || *update.Progress > 100) {
		return nil, &fleet.ValidationError{Field: "progress", Reason: "must be within [0,100]"}
	}
	if update.Dependencies != nil {
		if err := e.checkDependenciesLocked(id, update.Dependencies); err != nil {
			return nil, err
		}
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Progress != nil {
		task.Progress = *update.Progress
	}
	if update.Dependencies != nil {
		task.Dependencies = append([]string(nil), update.Dependencies...)
		if !task.Status.Terminal() {
			task.Status = e.deriveStatusLocked(task)
		}
	}
	task.UpdatedAt = e.boardNow()

	if err := e.persistAgentLocked(task.AgentID); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// StartTask moves a todo task to inprogress and stamps startedAt.
func (e *Engine) StartTask(id string) (*fleet.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, fleet.ErrNotFound)
	}
	if task.Status != fleet.TaskStatusTodo {
		return nil, &fleet.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot start a %s task", task.Status)}
	}

	now := e.boardNow()
	task.Status = fleet.TaskStatusInProgress
	task.StartedAt = &now
	task.UpdatedAt = now

	if err := e.persistAgentLocked(task.AgentID); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// CompleteTask moves an inprogress or todo task to done with progress=100,
// then synchronously re-derives status for every task depending on it.
// Completing a todo task stamps StartedAt as well, so short-lived work does
// not need a separate StartTask call.
func (e *Engine) CompleteTask(id string) (*fleet.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, fleet.ErrNotFound)
	}
	if task.Status != fleet.TaskStatusInProgress && task.Status != fleet.TaskStatusTodo {
		return nil, &fleet.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot complete a %s task", task.Status)}
	}

	now := e.boardNow()
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	task.Status = fleet.TaskStatusDone
	task.Progress = 100
	task.CompletedAt = &now
	task.UpdatedAt = now

	touched := e.recomputeDependentsLocked(id)
	touched[task.AgentID] = true
	if err := e.persistAgentsLocked(touched); err != nil {
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.Publish(context.Background(), notify.TaskCompleted{TaskID: id, AgentID: task.AgentID, Time: now})
	}

	return task.Clone(), nil
}

// CancelTask moves a todo task to cancelled (terminal). Cancellation only
// changes the record; stopping a process already executing the task is the
// agent runtime's concern.
func (e *Engine) CancelTask(id string) (*fleet.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, fleet.ErrNotFound)
	}
	if task.Status != fleet.TaskStatusTodo && task.Status != fleet.TaskStatusBlocked {
		return nil, &fleet.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot cancel a %s task", task.Status)}
	}

	task.Status = fleet.TaskStatusCancelled
	task.UpdatedAt = e.boardNow()

	if err := e.persistAgentLocked(task.AgentID); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// GetTask returns a copy of one task.
func (e *Engine) GetTask(id string) (*fleet.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, fleet.ErrNotFound)
	}
	return task.Clone(), nil
}

// GetAgentTasks returns copies of an agent's tasks, oldest first.
func (e *Engine) GetAgentTasks(agentID string) []*fleet.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(func(t *fleet.Task) bool { return t.AgentID == agentID })
}

// GetTasksByStatus returns copies of all tasks with the given status.
func (e *Engine) GetTasksByStatus(status fleet.TaskStatus) []*fleet.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(func(t *fleet.Task) bool { return t.Status == status })
}

// GetTasksByPriority returns copies of all tasks with the given priority.
func (e *Engine) GetTasksByPriority(priority fleet.Priority) []*fleet.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked(func(t *fleet.Task) bool { return t.Priority == priority })
}

// GetBlockedTasks returns copies of all blocked tasks.
func (e *Engine) GetBlockedTasks() []*fleet.Task {
	return e.GetTasksByStatus(fleet.TaskStatusBlocked)
}

// RemoveAgentTasks deletes every task owned by the agent and removes its
// board file. Used by callers orchestrating cascading agent deletion.
func (e *Engine) RemoveAgentTasks(agentID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, task := range e.tasks {
		if task.AgentID == agentID {
			delete(e.tasks, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	// Dependents in other agents' boards may unblock or stay blocked on
	// now-missing IDs; re-derive everything that referenced this agent.
	touched := make(map[string]bool)
	for _, task := range e.tasks {
		if task.Status.Terminal() {
			continue
		}
		next := e.deriveStatusLocked(task)
		if next != task.Status {
			task.Status = next
			task.UpdatedAt = e.boardNow()
			touched[task.AgentID] = true
		}
	}
	if err := e.persistAgentsLocked(touched); err != nil {
		return removed, err
	}

	path := e.boardPath(agentID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("failed to remove board file: %w", err)
	}
	delete(e.fileStates, path)
	return removed, nil
}

// Dashboard aggregates task counts.
type Dashboard struct {
	Total        int
	ByStatus     map[fleet.TaskStatus]int
	ByPriority   map[fleet.Priority]int
	ByAgent      map[string]int
	TotalBlocked int
}

// GetTaskDashboard recounts every task under the lock, so the per-status
// values always sum to Total.
func (e *Engine) GetTaskDashboard() Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Dashboard{
		ByStatus:   make(map[fleet.TaskStatus]int),
		ByPriority: make(map[fleet.Priority]int),
		ByAgent:    make(map[string]int),
	}
	for _, task := range e.tasks {
		d.Total++
		d.ByStatus[task.Status]++
		d.ByPriority[task.Priority]++
		d.ByAgent[task.AgentID]++
	}
	d.TotalBlocked = d.ByStatus[fleet.TaskStatusBlocked]
	return d
}

// checkDependenciesLocked rejects dangling references and cycles. taskID may
// not yet exist in the map (creation path); the candidate edge set is the
// current graph plus taskID -> deps.
func (e *Engine) checkDependenciesLocked(taskID string, deps []string) error {
	for _, dep := range deps {
		if dep == taskID {
			return fmt.Errorf("task %s depends on itself: %w", taskID, fleet.ErrCircularDependency)
		}
		if _, ok := e.tasks[dep]; !ok {
			return fmt.Errorf("dependency %s: %w", dep, fleet.ErrNotFound)
		}
	}

	// DFS from each dependency through existing edges; reaching taskID
	// means the new edges would close a cycle.
	visited := make(map[string]bool)
	var visit func(id string) bool
	visit = func(id string) bool {
		if id == taskID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		if task, ok := e.tasks[id]; ok {
			for _, next := range task.Dependencies {
				if visit(next) {
					return true
				}
			}
		}
		return false
	}
	for _, dep := range deps {
		if visit(dep) {
			return fmt.Errorf("dependency %s: %w", dep, fleet.ErrCircularDependency)
		}
	}
	return nil
}

// deriveStatusLocked classifies a non-terminal task: blocked while any
// dependency is not done, otherwise inprogress if it was started, else todo.
func (e *Engine) deriveStatusLocked(task *fleet.Task) fleet.TaskStatus {
	for _, dep := range task.Dependencies {
		depTask, ok := e.tasks[dep]
		if !ok || depTask.Status != fleet.TaskStatusDone {
			return fleet.TaskStatusBlocked
		}
	}
	if task.StartedAt != nil {
		return fleet.TaskStatusInProgress
	}
	return fleet.TaskStatusTodo
}

// recomputeDependentsLocked re-derives status for every non-terminal task
// depending on changedID, returning the set of agents whose boards changed.
func (e *Engine) recomputeDependentsLocked(changedID string) map[string]bool {
	touched := make(map[string]bool)
	for _, task := range e.tasks {
		if task.Status.Terminal() {
			continue
		}
		depends := false
		for _, dep := range task.Dependencies {
			if dep == changedID {
				depends = true
				break
			}
		}
		if !depends {
			continue
		}
		next := e.deriveStatusLocked(task)
		if next != task.Status {
			task.Status = next
			task.UpdatedAt = e.boardNow()
			touched[task.AgentID] = true
		}
	}
	return touched
}

// resyncDerivedLocked re-derives status for every non-terminal task,
// returning the set of agents whose boards changed. Board reloads call this
// so a task stays blocked exactly while a dependency is incomplete, no
// matter which board the edit landed on.
func (e *Engine) resyncDerivedLocked() map[string]bool {
	touched := make(map[string]bool)
	for _, task := range e.tasks {
		if task.Status.Terminal() {
			continue
		}
		next := e.deriveStatusLocked(task)
		if next != task.Status {
			task.Status = next
			task.UpdatedAt = e.boardNow()
			touched[task.AgentID] = true
		}
	}
	return touched
}

func (e *Engine) collectLocked(match func(*fleet.Task) bool) []*fleet.Task {
	var out []*fleet.Task
	for _, task := range e.tasks {
		if match(task) {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// boardNow truncates to seconds so timestamps survive the board round-trip
// byte-identically.
func (e *Engine) boardNow() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

func (e *Engine) boardPath(agentID string) string {
	return filepath.Join(e.dir, agentID+".md")
}

// persistAgentLocked rewrites one agent's board file.
func (e *Engine) persistAgentLocked(agentID string) error {
	return e.persistAgentsLocked(map[string]bool{agentID: true})
}

// persistAgentsLocked rewrites the board file of every listed agent.
func (e *Engine) persistAgentsLocked(agents map[string]bool) error {
	for agentID := range agents {
		var tasks []*fleet.Task
		for _, task := range e.tasks {
			if task.AgentID == agentID {
				tasks = append(tasks, task)
			}
		}

		path := e.boardPath(agentID)
		if err := os.WriteFile(path, EncodeBoard(agentID, tasks), 0o644); err != nil {
			return fmt.Errorf("failed to write board for %s: %w", agentID, err)
		}
		e.recordFileState(path)
	}
	return nil
}

func (e *Engine) recordFileState(path string) {
	if info, err := os.Stat(path); err == nil {
		e.fileStates[path] = fileState{modTime: info.ModTime(), size: info.Size()}
	}
}

// loadBoardFile parses one board file and replaces that agent's tasks
// wholesale. Callers hold the lock (or, at startup, have exclusive access).
func (e *Engine) loadBoardFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	agentID, tasks, err := DecodeBoard(data)
	if err != nil {
		return err
	}

	// Replace the agent's slice of the model atomically.
	for id, task := range e.tasks {
		if task.AgentID == agentID {
			delete(e.tasks, id)
		}
	}
	for _, task := range tasks {
		e.tasks[task.ID] = task
	}
	e.recordFileState(path)
	return nil
}
