package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/reconcile"
	"github.com/warrenhq/warren/internal/resolver"
	"github.com/warrenhq/warren/internal/runtime"
	"github.com/warrenhq/warren/internal/timespec"
)

var (
	rollbackTo        string
	rollbackReconcile bool
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the registry commit history",
	Long: `Show the registry's commit history, newest first.

Every agent mutation is one commit; pass any hash (or unique prefix) to
'warren rollback' to restore that fleet configuration.`,
	RunE: runHistory,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [COMMIT]",
	Short: "Restore the registry to a previous commit",
	Long: `Restore the whole agent registry to a previous commit.

The restore itself becomes a new commit, so a rollback can be rolled
back. Container state is not touched unless --reconcile is given.

Examples:
  # Roll back to a specific commit (short hash OK)
  warren rollback 4f2a9c1

  # Roll back to how the fleet looked two hours ago
  warren rollback --to 2h

  # Roll back and align running containers with the restored registry
  warren rollback --to 2026-08-31T09:00:00Z --reconcile`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum commits to show (0 = all)")

	rollbackCmd.Flags().StringVar(&rollbackTo, "to", "", "Point in time (duration ago like '2h', or RFC3339)")
	rollbackCmd.Flags().BoolVar(&rollbackReconcile, "reconcile", false, "Reconcile agent containers after the rollback")

	rootCmd.AddCommand(historyCmd, rollbackCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	commits, err := reg.GetCommitHistory(ctx, historyLimit)
	if err != nil {
		return printer.Error("Failed to read history", err.Error(), nil)
	}
	if len(commits) == 0 {
		printer.Info("No commits yet. Create an agent to start the history.\n")
		return nil
	}

	for _, c := range commits {
		printer.Printf("%s  %s  %s\n", c.Hash[:12], c.Timestamp.Format("2006-01-02 15:04:05"), c.Message)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && rollbackTo == "" {
		return printer.Error("Nothing to roll back to", "Give a commit hash or --to a point in time", []string{
			"Run 'warren history' to list commits",
			"Use --to 2h to restore the fleet as of two hours ago",
		})
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	var restored string
	if len(args) > 0 {
		commits, err := reg.GetCommitHistory(ctx, 0)
		if err != nil {
			return printer.Error("Failed to read history", err.Error(), nil)
		}
		hashes := make([]string, len(commits))
		for i, c := range commits {
			hashes[i] = c.Hash
		}
		hash, err := resolver.Resolve(args[0], hashes)
		if err != nil {
			if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
				printer.Println(resolver.FormatAmbiguousError(ambiguous))
			}
			return printer.Error("Commit not found", err.Error(), []string{"Run 'warren history' to list commits"})
		}
		if err := reg.Rollback(ctx, hash); err != nil {
			return printer.Error("Rollback failed", err.Error(), nil)
		}
		restored = hash
	} else {
		hours, err := timespec.HoursAgo(rollbackTo, time.Now())
		if err != nil {
			return printer.Error("Invalid --to value", err.Error(), nil)
		}
		hash, err := reg.RollbackToTime(ctx, hours)
		if err != nil {
			return printer.Error("Rollback failed", err.Error(), nil)
		}
		restored = hash
	}

	printer.Success("Registry restored to %s\n", shortID(restored))

	if !rollbackReconcile {
		printer.Info("Running containers were not touched. Use --reconcile to align them.\n")
		return nil
	}

	rt, err := runtime.NewDockerRuntime(ctx, runtime.DockerConfig{
		InstanceName: cfg.Instance.Name,
		AgentImage:   cfg.Agents.Image,
		NetworkName:  cfg.Agents.Network,
	})
	if err != nil {
		return printer.Error("Reconcile failed", err.Error(), nil)
	}

	result, err := reconcile.New(reg, rt).Run(ctx)
	if err != nil {
		return printer.Error("Reconcile failed", err.Error(), nil)
	}
	if result.PartialFailure() {
		printer.Warning("Reconcile finished with failures: %s\n", result.Summary())
		return nil
	}
	printer.Success("Reconciled containers: %s\n", result.Summary())
	return nil
}
