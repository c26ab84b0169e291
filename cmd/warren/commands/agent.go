package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/printer"
	"github.com/warrenhq/warren/internal/registry"
	"github.com/warrenhq/warren/pkg/fleet"
)

var (
	agentName         string
	agentPrompt       string
	agentCapabilities []string
	agentCPUs         string
	agentMemory       string
	agentMaxTasks     int
	agentFindQuery    string
	agentRelateType   string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage fleet agents",
	Long: `Manage the agents registered in this warren instance.

Every mutation is committed to the registry's git history, so any
previous fleet configuration can be restored with 'warren rollback'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var agentCreateCmd = &cobra.Command{
	Use:   "create AGENT_ID",
	Short: "Register a new agent",
	Long: `Register a new agent in the fleet.

The agent starts inactive; activate it with 'warren agent activate' once
its container image is ready.

Examples:
  warren agent create builder-1 --name "Builder" \
    --prompt "You build Go services from task descriptions." \
    --capability golang --capability testing

  warren agent create reviewer --name "Reviewer" \
    --prompt "You review code changes for correctness and style." \
    --cpus 0.5 --memory 256m`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentCreate,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE:  runAgentList,
}

var agentGetCmd = &cobra.Command{
	Use:   "get AGENT_ID",
	Short: "Show one agent in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentGet,
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete AGENT_ID",
	Short: "Remove an agent and its task board",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentDelete,
}

var agentActivateCmd = &cobra.Command{
	Use:   "activate AGENT_ID",
	Short: "Mark an agent active so the reconciler runs its container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAgentStatus(args[0], fleet.AgentStatusActive)
	},
}

var agentDeactivateCmd = &cobra.Command{
	Use:   "deactivate AGENT_ID",
	Short: "Mark an agent inactive so the reconciler stops its container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAgentStatus(args[0], fleet.AgentStatusInactive)
	},
}

var agentFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find agents by capability",
	Long: `Find agents whose capabilities or system prompt match a query.

Examples:
  warren agent find --capability golang`,
	RunE: runAgentFind,
}

var agentRelateCmd = &cobra.Command{
	Use:   "relate AGENT_ID TARGET_ID",
	Short: "Record a relationship between two agents",
	Long: `Record a relationship edge from one agent to another.

Types: collaborator, supervisor, subordinate, peer

Examples:
  warren agent relate planner builder-1 --type supervisor`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentRelate,
}

func init() {
	agentCreateCmd.Flags().StringVar(&agentName, "name", "", "Human-readable agent name (required)")
	agentCreateCmd.Flags().StringVar(&agentPrompt, "prompt", "", "System prompt (required)")
	agentCreateCmd.Flags().StringArrayVar(&agentCapabilities, "capability", nil, "Capability tag, repeatable")
	agentCreateCmd.Flags().StringVar(&agentCPUs, "cpus", "", "CPU limit, e.g. 0.5")
	agentCreateCmd.Flags().StringVar(&agentMemory, "memory", "", "Memory limit, e.g. 512m")
	agentCreateCmd.Flags().IntVar(&agentMaxTasks, "max-tasks", 0, "Concurrent task cap")
	agentCreateCmd.MarkFlagRequired("name")
	agentCreateCmd.MarkFlagRequired("prompt")

	agentFindCmd.Flags().StringVar(&agentFindQuery, "capability", "", "Capability or prompt text to match (required)")
	agentFindCmd.MarkFlagRequired("capability")

	agentRelateCmd.Flags().StringVar(&agentRelateType, "type", string(fleet.RelationshipCollaborator), "Relationship type")

	agentCmd.AddCommand(agentCreateCmd, agentListCmd, agentGetCmd, agentDeleteCmd,
		agentActivateCmd, agentDeactivateCmd, agentFindCmd, agentRelateCmd)
	rootCmd.AddCommand(agentCmd)
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), []string{"Run 'warren init' to create a project here"})
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	record, err := reg.CreateAgent(ctx, registryAgentConfig(args[0]))
	if err != nil {
		return printer.Error("Failed to create agent", err.Error(), nil)
	}

	printer.Success("Created agent '%s'\n", record.ID)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	agents := reg.ListAgents()
	if len(agents) == 0 {
		printer.Info("No agents registered. Create one with 'warren agent create'.\n")
		return nil
	}

	printer.Printf("%-20s %-20s %-10s %s\n", "ID", "NAME", "STATUS", "CAPABILITIES")
	for _, agent := range agents {
		printer.Printf("%-20s %-20s %-10s %s\n", agent.ID, agent.Name, agent.Status, strings.Join(agent.Capabilities, ", "))
	}
	return nil
}

func runAgentGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	agent, err := reg.GetAgent(args[0])
	if err != nil {
		return printer.ErrorWithContext("Agent not found", "No agent with that ID is registered", map[string]string{
			"Agent": args[0],
		}, []string{"Run 'warren agent list' to see registered agents"})
	}

	printer.Printf("ID:           %s\n", agent.ID)
	printer.Printf("Name:         %s\n", agent.Name)
	printer.Printf("Status:       %s\n", agent.Status)
	printer.Printf("Capabilities: %s\n", strings.Join(agent.Capabilities, ", "))
	printer.Printf("Resources:    cpus=%s memory=%s max_tasks=%d\n",
		agent.ResourceLimits.CPUs, agent.ResourceLimits.Memory, agent.ResourceLimits.MaxTasks)
	printer.Printf("Created:      %s\n", agent.CreatedAt.Format("2006-01-02 15:04:05"))
	printer.Printf("Modified:     %s\n", agent.LastModified.Format("2006-01-02 15:04:05"))
	if len(agent.Relationships) > 0 {
		printer.Printf("Relationships:\n")
		for _, rel := range agent.Relationships {
			printer.Printf("  %s -> %s\n", rel.Type, rel.TargetAgentID)
		}
	}
	printer.Printf("\nPrompt:\n%s\n", agent.SystemPrompt)
	return nil
}

func runAgentDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	if err := reg.DeleteAgent(ctx, args[0]); err != nil {
		return printer.Error("Failed to delete agent", err.Error(), nil)
	}

	// Cascade: the agent's tasks go with it.
	engine, err := openEngine(cfg, reg)
	if err == nil {
		if removed, err := engine.RemoveAgentTasks(args[0]); err == nil && removed > 0 {
			printer.Info("Removed %d tasks owned by '%s'\n", removed, args[0])
		}
	}

	printer.Success("Deleted agent '%s'\n", args[0])
	return nil
}

func setAgentStatus(agentID string, status fleet.AgentStatus) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	if err := reg.UpdateAgentStatus(ctx, agentID, status); err != nil {
		return printer.Error("Failed to update agent status", err.Error(), nil)
	}

	printer.Success("Agent '%s' is now %s\n", agentID, status)
	return nil
}

func runAgentFind(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	matches := reg.FindAgentsByCapability(agentFindQuery)
	if len(matches) == 0 {
		printer.Info("No agents match '%s'\n", agentFindQuery)
		return nil
	}
	for _, agent := range matches {
		printer.Printf("%s (%s): %s\n", agent.ID, agent.Status, strings.Join(agent.Capabilities, ", "))
	}
	return nil
}

func runAgentRelate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return printer.Error("Configuration error", err.Error(), nil)
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return printer.Error("Failed to open registry", err.Error(), nil)
	}

	rel := fleet.Relationship{
		TargetAgentID: args[1],
		Type:          fleet.RelationshipType(agentRelateType),
	}
	if err := reg.AddRelationship(ctx, args[0], rel); err != nil {
		return printer.Error("Failed to add relationship", err.Error(), nil)
	}

	printer.Success("%s is now %s of %s\n", args[0], agentRelateType, args[1])
	return nil
}

func registryAgentConfig(id string) registry.AgentConfig {
	return registry.AgentConfig{
		ID:           id,
		Name:         agentName,
		SystemPrompt: agentPrompt,
		Capabilities: agentCapabilities,
		ResourceLimits: fleet.ResourceLimits{
			CPUs:     agentCPUs,
			Memory:   agentMemory,
			MaxTasks: agentMaxTasks,
		},
	}
}
