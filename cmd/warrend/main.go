// warrend is the fleet daemon: it runs the broker delivery loop, the board
// watcher, and reconciles agent containers against the registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/warrenhq/warren/internal/broker"
	"github.com/warrenhq/warren/internal/config"
	"github.com/warrenhq/warren/internal/history"
	"github.com/warrenhq/warren/internal/notify"
	"github.com/warrenhq/warren/internal/reconcile"
	"github.com/warrenhq/warren/internal/registry"
	"github.com/warrenhq/warren/internal/runtime"
	"github.com/warrenhq/warren/internal/taskboard"
)

func main() {
	configPath := flag.String("config", config.DefaultFileName, "path to warren.yml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("warrend starting for instance '%s'\n", cfg.Instance.Name)

	// 2. Parse Redis URL and verify connectivity
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}

	msgHistory, err := broker.NewHistory(redisOpts, cfg.Instance.Name, cfg.Broker.MaxHistoryPerAgent)
	if err != nil {
		return err
	}
	defer msgHistory.Close()

	ctx := context.Background()
	if err := msgHistory.Ping(ctx); err != nil {
		return fmt.Errorf("redis not accessible at %s: %w", cfg.Redis.URL, err)
	}

	// 3. Open the registry over its git history
	store, err := history.NewGitStore(filepath.Join(cfg.Storage.DataDir, "registry"), "warrend", "warrend@"+cfg.Instance.Name)
	if err != nil {
		return err
	}

	notifier := notify.NewFanout(notify.LogSink{})
	reg, err := registry.New(ctx, store, registry.Options{
		Defaults: cfg.Defaults.Resources,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registry loaded with %d agents\n", len(reg.ListAgents()))

	// 4. Task engine over the board directory
	engine, err := taskboard.NewEngine(cfg.Storage.BoardsDir, reg, taskboard.Options{Notifier: notifier})
	if err != nil {
		return err
	}
	watcher := taskboard.NewWatcher(engine, cfg.Watch.PollInterval())

	// 5. Message broker
	msgBroker := broker.New(msgHistory, reg, broker.Options{
		MaxQueueSize: cfg.Broker.MaxQueueSize,
		TickInterval: cfg.Broker.Tick(),
		Notifier:     notifier,
	})

	// 6. Docker runtime is optional: without it the daemon still serves
	// tasks and messages, it just cannot run agent containers.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dockerRT, err := runtime.NewDockerRuntime(ctx, runtime.DockerConfig{
		InstanceName: cfg.Instance.Name,
		AgentImage:   cfg.Agents.Image,
		NetworkName:  cfg.Agents.Network,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Docker not accessible (agent containers disabled): %v\n", err)
	} else {
		reconciler := reconcile.New(reg, dockerRT)
		if result, err := reconciler.Run(runCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: startup reconciliation failed: %v\n", err)
		} else {
			fmt.Printf("Reconciled agent containers: %s\n", result.Summary())
		}
	}

	// 7. Start the loops
	go msgBroker.Run(runCtx)
	go watcher.Run(runCtx)

	// 8. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
	cancel()

	fmt.Println("warrend stopped")
	return nil
}
