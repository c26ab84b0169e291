package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warrenhq/warren/internal/broker"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/history"
	"github.com/warrenhq/warren/internal/registry"
	"github.com/warrenhq/warren/internal/taskboard"
)

var (
	version string
	commit  string
	date    string
)

// configPath is settable with --config on every command.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - AI agent fleet orchestrator",
	Long: `Warren manages a fleet of AI agent containers: a versioned agent
registry with full rollback, per-agent task boards with dependency
tracking, and a prioritized message broker backed by Redis.

State lives in plain files under .warren/ (a git-backed registry and
markdown task boards), so every change is inspectable and revertible.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "path to warren.yml")
}

// loadConfig reads warren.yml from --config.
func loadConfig() (*config.WarrenConfig, error) {
	return config.Load(configPath)
}

// openRegistry loads the registry from its git history.
func openRegistry(ctx context.Context, cfg *config.WarrenConfig) (*registry.Registry, error) {
	store, err := history.NewGitStore(filepath.Join(cfg.Storage.DataDir, "registry"), "warren", "warren@"+cfg.Instance.Name)
	if err != nil {
		return nil, err
	}
	return registry.New(ctx, store, registry.Options{Defaults: cfg.Defaults.Resources})
}

// openEngine loads the task engine over the board directory.
func openEngine(cfg *config.WarrenConfig, reg *registry.Registry) (*taskboard.Engine, error) {
	return taskboard.NewEngine(cfg.Storage.BoardsDir, reg, taskboard.Options{})
}

// openBroker connects the broker to Redis for history operations.
func openBroker(ctx context.Context, cfg *config.WarrenConfig, reg *registry.Registry) (*broker.Broker, *broker.History, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis.url: %w", err)
	}
	msgHistory, err := broker.NewHistory(redisOpts, cfg.Instance.Name, cfg.Broker.MaxHistoryPerAgent)
	if err != nil {
		return nil, nil, err
	}
	if err := msgHistory.Ping(ctx); err != nil {
		msgHistory.Close()
		return nil, nil, fmt.Errorf("redis not accessible at %s: %w", cfg.Redis.URL, err)
	}
	b := broker.New(msgHistory, reg, broker.Options{
		MaxQueueSize: cfg.Broker.MaxQueueSize,
		TickInterval: cfg.Broker.Tick(),
	})
	return b, msgHistory, nil
}
