package commands

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/runtime"
	"github.com/warrenhq/warren/pkg/fleet"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instance status",
	Long: `Show a summary of this warren instance: registered agents by
status, task counts, and the containers actually running (with live
resource usage when Docker is reachable).`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), []string{"Run 'warren init' to create a project here"})
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	printer.Printf("Instance: %s\n\n", cfg.Instance.Name)

	stats := reg.GetStats()
	printer.Printf("Agents: %d\n", stats.TotalAgents)
	statuses := make([]string, 0, len(stats.ByStatus))
	for status := range stats.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		printer.Printf("  %-10s %d\n", status, stats.ByStatus[fleet.AgentStatus(status)])
	}
	if !stats.LastModified.IsZero() {
		printer.Printf("Last change: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}

	engine, err := openEngine(cfg, reg)
	if err == nil {
		d := engine.GetTaskDashboard()
		printer.Printf("\nTasks: %d", d.Total)
		if d.TotalBlocked > 0 {
			printer.Printf(" (%d blocked)", d.TotalBlocked)
		}
		printer.Printf("\n")
	}

	rt, err := runtime.NewDockerRuntime(ctx, runtime.DockerConfig{
		InstanceName: cfg.Instance.Name,
		AgentImage:   cfg.Agents.Image,
		NetworkName:  cfg.Agents.Network,
	})
	if err != nil {
		printer.Warning("Docker not reachable, container status unavailable\n")
		return nil
	}

	running, err := rt.Running(ctx)
	if err != nil {
		printer.Warning("Could not list containers: %v\n", err)
		return nil
	}
	printer.Printf("\nRunning containers: %d\n", len(running))
	if len(running) == 0 {
		return nil
	}

	metrics := runtime.NewDockerMetrics(rt)
	for _, agentID := range running {
		sample, err := metrics.Sample(ctx, agentID)
		if err != nil {
			printer.Printf("  %-20s (metrics unavailable)\n", agentID)
			continue
		}
		printer.Printf("  %-20s cpu %.1f%%  mem %.1f MiB  up %s\n",
			agentID, sample.CPUPercent, float64(sample.MemoryBytes)/(1024*1024), sample.Uptime.Round(time.Second))
	}
	return nil
}
