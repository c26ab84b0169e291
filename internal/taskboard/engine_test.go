package taskboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenhq/warren/pkg/fleet"
)

type staticChecker map[string]bool

func (c staticChecker) Exists(id string) bool { return c[id] }

func fleetChecker() staticChecker {
	return staticChecker{"builder-1": true, "planner": true, "reviewer": true}
}

func setupEngine(t *testing.T) (*Engine, string) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, fleetChecker(), Options{})
	require.NoError(t, err)
	return engine, dir
}

func TestCreateTask(t *testing.T) {
	engine, dir := setupEngine(t)

	t.Run("creates with defaults", func(t *testing.T) {
		task, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Write the parser"})
		require.NoError(t, err)

		assert.NotEmpty(t, task.ID)
		assert.Equal(t, fleet.TaskStatusTodo, task.Status)
		assert.Equal(t, fleet.PriorityMedium, task.Priority)
		assert.False(t, task.CreatedAt.IsZero())

		_, err = os.Stat(filepath.Join(dir, "builder-1.md"))
		assert.NoError(t, err)
	})

	t.Run("rejects unknown agent", func(t *testing.T) {
		_, err := engine.CreateTask(CreateTaskRequest{AgentID: "ghost", Title: "Haunt"})
		assert.ErrorIs(t, err, fleet.ErrNotFound)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1"})
		assert.True(t, fleet.IsValidation(err))
	})

	t.Run("rejects dangling dependency", func(t *testing.T) {
		_, err := engine.CreateTask(CreateTaskRequest{
			AgentID:      "builder-1",
			Title:        "Depends on nothing real",
			Dependencies: []string{"no-such-task"},
		})
		assert.ErrorIs(t, err, fleet.ErrNotFound)

		// Nothing leaked into the model.
		assert.Len(t, engine.GetAgentTasks("builder-1"), 1)
	})
}

func TestDependencyBlocking(t *testing.T) {
	engine, _ := setupEngine(t)

	dep, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Design the schema"})
	require.NoError(t, err)

	blocked, err := engine.CreateTask(CreateTaskRequest{
		AgentID:      "builder-1",
		Title:        "Implement the schema",
		Dependencies: []string{dep.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, fleet.TaskStatusBlocked, blocked.Status)

	t.Run("cannot start while blocked", func(t *testing.T) {
		_, err := engine.StartTask(blocked.ID)
		assert.True(t, fleet.IsValidation(err))
	})

	t.Run("completing the dependency unblocks to todo", func(t *testing.T) {
		_, err := engine.StartTask(dep.ID)
		require.NoError(t, err)
		_, err = engine.CompleteTask(dep.ID)
		require.NoError(t, err)

		got, err := engine.GetTask(blocked.ID)
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusTodo, got.Status)
	})

	t.Run("started task returns to inprogress after unblocking", func(t *testing.T) {
		running, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Long migration"})
		require.NoError(t, err)
		_, err = engine.StartTask(running.ID)
		require.NoError(t, err)

		gate, err := engine.CreateTask(CreateTaskRequest{AgentID: "planner", Title: "Approve migration"})
		require.NoError(t, err)

		updated, err := engine.UpdateTask(running.ID, TaskUpdate{Dependencies: []string{gate.ID}})
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusBlocked, updated.Status)

		_, err = engine.StartTask(gate.ID)
		require.NoError(t, err)
		_, err = engine.CompleteTask(gate.ID)
		require.NoError(t, err)

		got, err := engine.GetTask(running.ID)
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusInProgress, got.Status)
	})
}

func TestCircularDependencies(t *testing.T) {
	engine, _ := setupEngine(t)

	a, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "A"})
	require.NoError(t, err)
	b, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "B", Dependencies: []string{a.ID}})
	require.NoError(t, err)
	c, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "C", Dependencies: []string{b.ID}})
	require.NoError(t, err)

	t.Run("rejects closing a cycle", func(t *testing.T) {
		_, err := engine.UpdateTask(a.ID, TaskUpdate{Dependencies: []string{c.ID}})
		assert.ErrorIs(t, err, fleet.ErrCircularDependency)

		got, err := engine.GetTask(a.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Dependencies)
	})

	t.Run("rejects self dependency", func(t *testing.T) {
		_, err := engine.UpdateTask(a.ID, TaskUpdate{Dependencies: []string{a.ID}})
		assert.ErrorIs(t, err, fleet.ErrCircularDependency)
	})
}

func TestTaskLifecycle(t *testing.T) {
	engine, _ := setupEngine(t)

	task, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Ship it"})
	require.NoError(t, err)

	t.Run("cannot complete a blocked task", func(t *testing.T) {
		dep, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Prereq"})
		require.NoError(t, err)
		blocked, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Waits", Dependencies: []string{dep.ID}})
		require.NoError(t, err)

		_, err = engine.CompleteTask(blocked.ID)
		assert.True(t, fleet.IsValidation(err))
	})

	t.Run("start stamps startedAt", func(t *testing.T) {
		started, err := engine.StartTask(task.ID)
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusInProgress, started.Status)
		require.NotNil(t, started.StartedAt)
	})

	t.Run("complete sets progress and completedAt", func(t *testing.T) {
		done, err := engine.CompleteTask(task.ID)
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusDone, done.Status)
		assert.Equal(t, 100, done.Progress)
		require.NotNil(t, done.CompletedAt)
	})

	t.Run("done is terminal", func(t *testing.T) {
		_, err := engine.StartTask(task.ID)
		assert.True(t, fleet.IsValidation(err))
		_, err = engine.CancelTask(task.ID)
		assert.True(t, fleet.IsValidation(err))
	})

	t.Run("cancel from todo", func(t *testing.T) {
		other, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Never mind"})
		require.NoError(t, err)

		cancelled, err := engine.CancelTask(other.ID)
		require.NoError(t, err)
		assert.Equal(t, fleet.TaskStatusCancelled, cancelled.Status)
	})
}

func TestCompleteFromTodo(t *testing.T) {
	engine, _ := setupEngine(t)

	first, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Write the migration"})
	require.NoError(t, err)
	second, err := engine.CreateTask(CreateTaskRequest{AgentID: "planner", Title: "Run it", Dependencies: []string{first.ID}})
	require.NoError(t, err)
	assert.Equal(t, fleet.TaskStatusBlocked, second.Status)

	// No explicit StartTask; completion stamps the start implicitly.
	done, err := engine.CompleteTask(first.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.TaskStatusDone, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	unblocked, err := engine.GetTask(second.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.TaskStatusTodo, unblocked.Status)
}

func TestUpdateTask(t *testing.T) {
	engine, _ := setupEngine(t)

	task, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Draft"})
	require.NoError(t, err)

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		title := "Final"
		progress := 30
		updated, err := engine.UpdateTask(task.ID, TaskUpdate{Title: &title, Progress: &progress})
		require.NoError(t, err)

		assert.Equal(t, "Final", updated.Title)
		assert.Equal(t, 30, updated.Progress)
		assert.Equal(t, fleet.PriorityMedium, updated.Priority)
	})

	t.Run("rejects out of range progress", func(t *testing.T) {
		progress := 150
		_, err := engine.UpdateTask(task.ID, TaskUpdate{Progress: &progress})
		assert.True(t, fleet.IsValidation(err))
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := engine.UpdateTask("missing", TaskUpdate{})
		assert.ErrorIs(t, err, fleet.ErrNotFound)
	})
}

func TestDelegateTask(t *testing.T) {
	engine, _ := setupEngine(t)

	task, err := engine.DelegateTask("planner", "builder-1", CreateTaskRequest{
		Title:    "Build the thing the plan describes",
		Priority: fleet.PriorityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, "builder-1", task.AgentID)
	assert.Equal(t, "planner", task.RequestedBy)

	_, err = engine.DelegateTask("ghost", "builder-1", CreateTaskRequest{Title: "From nowhere"})
	assert.ErrorIs(t, err, fleet.ErrNotFound)
}

func TestTaskQueries(t *testing.T) {
	engine, _ := setupEngine(t)

	now := time.Now()
	engine.now = func() time.Time { now = now.Add(time.Second); return now }

	first, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "First", Priority: fleet.PriorityLow})
	require.NoError(t, err)
	second, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Second", Priority: fleet.PriorityHigh})
	require.NoError(t, err)
	_, err = engine.CreateTask(CreateTaskRequest{AgentID: "planner", Title: "Plan", Dependencies: []string{first.ID}})
	require.NoError(t, err)

	t.Run("agent tasks oldest first", func(t *testing.T) {
		tasks := engine.GetAgentTasks("builder-1")
		require.Len(t, tasks, 2)
		assert.Equal(t, first.ID, tasks[0].ID)
		assert.Equal(t, second.ID, tasks[1].ID)
	})

	t.Run("by priority", func(t *testing.T) {
		tasks := engine.GetTasksByPriority(fleet.PriorityHigh)
		require.Len(t, tasks, 1)
		assert.Equal(t, second.ID, tasks[0].ID)
	})

	t.Run("blocked tasks", func(t *testing.T) {
		tasks := engine.GetBlockedTasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "planner", tasks[0].AgentID)
	})

	t.Run("dashboard counts sum to total", func(t *testing.T) {
		d := engine.GetTaskDashboard()
		assert.Equal(t, 3, d.Total)
		assert.Equal(t, 2, d.ByStatus[fleet.TaskStatusTodo])
		assert.Equal(t, 1, d.ByStatus[fleet.TaskStatusBlocked])
		assert.Equal(t, 1, d.TotalBlocked)
		assert.Equal(t, 2, d.ByAgent["builder-1"])

		statusSum := 0
		for _, n := range d.ByStatus {
			statusSum += n
		}
		assert.Equal(t, d.Total, statusSum)
	})
}

func TestEngineReloadsBoardsOnStartup(t *testing.T) {
	engine, dir := setupEngine(t)

	task, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Survives restart", Priority: fleet.PriorityCritical})
	require.NoError(t, err)

	reopened, err := NewEngine(dir, fleetChecker(), Options{})
	require.NoError(t, err)

	got, err := reopened.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestRemoveAgentTasks(t *testing.T) {
	engine, dir := setupEngine(t)

	dep, err := engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Upstream"})
	require.NoError(t, err)
	_, err = engine.CreateTask(CreateTaskRequest{AgentID: "builder-1", Title: "Also mine"})
	require.NoError(t, err)
	dependent, err := engine.CreateTask(CreateTaskRequest{AgentID: "planner", Title: "Downstream", Dependencies: []string{dep.ID}})
	require.NoError(t, err)

	removed, err := engine.RemoveAgentTasks("builder-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(filepath.Join(dir, "builder-1.md"))
	assert.True(t, os.IsNotExist(err))

	// The dependent still references a now-missing task, so it stays blocked.
	got, err := engine.GetTask(dependent.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.TaskStatusBlocked, got.Status)
}
