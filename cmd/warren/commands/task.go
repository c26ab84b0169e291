package commands

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/resolver"
	"github.com/warrenhq/warren/internal/taskboard"
	"github.com/warrenhq/warren/pkg/fleet"
)

var (
	taskAgent       string
	taskTitle       string
	taskDescription string
	taskPriority    string
	taskDeps        []string
	taskFrom        string
	taskListStatus  string
	taskListAgent   string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage agent tasks",
	Long: `Manage the per-agent task boards.

Each agent's tasks live in a markdown file under .warren/boards/ that
you can also edit directly; warren picks up external edits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task for an agent",
	Long: `Create a task on an agent's board.

A task with dependencies starts blocked and unblocks automatically when
every dependency is done. Dependency IDs may be short prefixes.

Examples:
  warren task create --agent builder-1 --title "Write the parser" --priority HIGH

  warren task create --agent builder-1 --title "Wire the broker" \
    --dep 4f2a --dep 9c1e`,
	RunE: runTaskCreate,
}

var taskDelegateCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Create a task on another agent's board",
	Long: `Create a task on one agent's board on behalf of another.

Examples:
  warren task delegate --from planner --agent builder-1 --title "Build the CLI"`,
	RunE: runTaskDelegate,
}

var taskStartCmd = &cobra.Command{
	Use:   "start TASK_ID",
	Short: "Move a task to in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(args[0], "start")
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete TASK_ID",
	Short: "Mark a task done and unblock its dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(args[0], "complete")
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel TASK_ID",
	Short: "Cancel a task that has not started",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskTransition(args[0], "cancel")
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with optional filters",
	Long: `List tasks across the fleet.

Examples:
  warren task list
  warren task list --agent builder-1
  warren task list --status blocked`,
	RunE: runTaskList,
}

var taskDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show fleet-wide task counts",
	RunE:  runTaskDashboard,
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskAgent, "agent", "", "Owning agent ID (required)")
	taskCreateCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskCreateCmd.Flags().StringVar(&taskDescription, "description", "", "Longer description")
	taskCreateCmd.Flags().StringVar(&taskPriority, "priority", "", "LOW, MEDIUM, HIGH, or CRITICAL")
	taskCreateCmd.Flags().StringArrayVar(&taskDeps, "dep", nil, "Dependency task ID (short prefix OK), repeatable")
	taskCreateCmd.MarkFlagRequired("agent")
	taskCreateCmd.MarkFlagRequired("title")

	taskDelegateCmd.Flags().StringVar(&taskFrom, "from", "", "Requesting agent ID (required)")
	taskDelegateCmd.Flags().StringVar(&taskAgent, "agent", "", "Owning agent ID (required)")
	taskDelegateCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskDelegateCmd.Flags().StringVar(&taskDescription, "description", "", "Longer description")
	taskDelegateCmd.Flags().StringVar(&taskPriority, "priority", "", "LOW, MEDIUM, HIGH, or CRITICAL")
	taskDelegateCmd.MarkFlagRequired("from")
	taskDelegateCmd.MarkFlagRequired("agent")
	taskDelegateCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVar(&taskListAgent, "agent", "", "Only this agent's tasks")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only tasks with this status")

	taskCmd.AddCommand(taskCreateCmd, taskDelegateCmd, taskStartCmd, taskCompleteCmd,
		taskCancelCmd, taskListCmd, taskDashboardCmd)
	rootCmd.AddCommand(taskCmd)
}

func openTaskEngine() (*taskboard.Engine, error) {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return nil, printer.Error("Configuration error", err.Error(), []string{"Run 'warren init' to create a project here"})
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return nil, printer.Error("Failed to open registry", err.Error(), nil)
	}
	engine, err := openEngine(cfg, reg)
	if err != nil {
		return nil, printer.Error("Failed to open task boards", err.Error(), nil)
	}
	return engine, nil
}

// resolveTaskID expands a short task ID prefix against every known task.
func resolveTaskID(engine *taskboard.Engine, shortID string) (string, error) {
	var ids []string
	for _, status := range []fleet.TaskStatus{
		fleet.TaskStatusTodo, fleet.TaskStatusInProgress, fleet.TaskStatusBlocked,
		fleet.TaskStatusDone, fleet.TaskStatusCancelled,
	} {
		for _, task := range engine.GetTasksByStatus(status) {
			ids = append(ids, task.ID)
		}
	}

	full, err := resolver.Resolve(shortID, ids)
	if err != nil {
		if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
			printer.Println(resolver.FormatAmbiguousError(ambiguous))
		}
		return "", err
	}
	return full, nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	engine, err := openTaskEngine()
	if err != nil {
		return err
	}

	deps := make([]string, 0, len(taskDeps))
	for _, dep := range taskDeps {
		full, err := resolveTaskID(engine, dep)
		if err != nil {
			return printer.Error("Unknown dependency", err.Error(), nil)
		}
		deps = append(deps, full)
	}

	task, err := engine.CreateTask(taskboard.CreateTaskRequest{
		AgentID:      taskAgent,
		Title:        taskTitle,
		Description:  taskDescription,
		Priority:     fleet.Priority(taskPriority),
		Dependencies: deps,
	})
	if err != nil {
		return printer.Error("Failed to create task", err.Error(), nil)
	}

	printer.Success("Created task %s (%s)\n", task.ID, task.Status)
	return nil
}

func runTaskDelegate(cmd *cobra.Command, args []string) error {
	engine, err := openTaskEngine()
	if err != nil {
		return err
	}

	task, err := engine.DelegateTask(taskFrom, taskAgent, taskboard.CreateTaskRequest{
		Title:       taskTitle,
		Description: taskDescription,
		Priority:    fleet.Priority(taskPriority),
	})
	if err != nil {
		return printer.Error("Failed to delegate task", err.Error(), nil)
	}

	printer.Success("Delegated task %s to '%s'\n", task.ID, taskAgent)
	return nil
}

func runTaskTransition(shortID, op string) error {
	engine, err := openTaskEngine()
	if err != nil {
		return err
	}

	id, err := resolveTaskID(engine, shortID)
	if err != nil {
		return printer.Error("Task not found", err.Error(), nil)
	}

	var task *fleet.Task
	switch op {
	case "start":
		task, err = engine.StartTask(id)
	case "complete":
		task, err = engine.CompleteTask(id)
	case "cancel":
		task, err = engine.CancelTask(id)
	}
	if err != nil {
		return printer.Error("Task transition failed", err.Error(), nil)
	}

	printer.Success("Task %s is now %s\n", task.ID, task.Status)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	engine, err := openTaskEngine()
	if err != nil {
		return err
	}

	var tasks []*fleet.Task
	switch {
	case taskListAgent != "":
		tasks = engine.GetAgentTasks(taskListAgent)
	case taskListStatus != "":
		status := fleet.TaskStatus(taskListStatus)
		if err := status.Validate(); err != nil {
			return printer.Error("Invalid status filter", err.Error(), nil)
		}
		tasks = engine.GetTasksByStatus(status)
	default:
		for _, status := range []fleet.TaskStatus{
			fleet.TaskStatusTodo, fleet.TaskStatusInProgress, fleet.TaskStatusBlocked,
			fleet.TaskStatusDone, fleet.TaskStatusCancelled,
		} {
			tasks = append(tasks, engine.GetTasksByStatus(status)...)
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	}

	if len(tasks) == 0 {
		printer.Info("No tasks found.\n")
		return nil
	}

	printer.Printf("%-10s %-15s %-12s %-9s %s\n", "ID", "AGENT", "STATUS", "PRIORITY", "TITLE")
	for _, task := range tasks {
		printer.Printf("%-10s %-15s %-12s %-9s %s\n", shortID(task.ID), task.AgentID, task.Status, task.Priority, task.Title)
	}
	return nil
}

func runTaskDashboard(cmd *cobra.Command, args []string) error {
	engine, err := openTaskEngine()
	if err != nil {
		return err
	}

	d := engine.GetTaskDashboard()
	printer.Printf("Total tasks: %d\n\n", d.Total)

	printer.Printf("By status:\n")
	for _, status := range []fleet.TaskStatus{
		fleet.TaskStatusTodo, fleet.TaskStatusInProgress, fleet.TaskStatusBlocked,
		fleet.TaskStatusDone, fleet.TaskStatusCancelled,
	} {
		if n := d.ByStatus[status]; n > 0 {
			printer.Printf("  %-12s %d\n", status, n)
		}
	}

	printer.Printf("\nBy agent:\n")
	agents := make([]string, 0, len(d.ByAgent))
	for agent := range d.ByAgent {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		printer.Printf("  %-15s %d\n", agent, d.ByAgent[agent])
	}

	if d.TotalBlocked > 0 {
		printer.Warning("%d tasks are blocked on dependencies\n", d.TotalBlocked)
	}
	return nil
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
