// Package reconcile makes live agent processes match the registry's desired
// state. It is invoked explicitly after a rollback; the rollback itself
// succeeds even when reconciliation has partial failures.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/warrenhq/warren/internal/registry"
	"github.com/warrenhq/warren/internal/runtime"
)

// Action records one spawn or kill attempt.
type Action struct {
	AgentID string
	Op      string // "spawn" or "kill"
	Err     error  // nil on success
}

// Result aggregates a reconciliation pass. Per-agent failures are data, not
// an error: the caller decides whether to retry individual agents.
type Result struct {
	Spawned  []string
	Killed   []string
	Failures []Action
}

// PartialFailure reports whether any individual spawn/kill failed.
func (r *Result) PartialFailure() bool {
	return len(r.Failures) > 0
}

// Summary renders a one-line human description of the pass.
func (r *Result) Summary() string {
	return fmt.Sprintf("spawned %d, killed %d, %d failures", len(r.Spawned), len(r.Killed), len(r.Failures))
}

// Reconciler diffs the registry's active set against the runtime's running
// set and drives the runtime to close the gap.
type Reconciler struct {
	registry *registry.Registry
	runtime  runtime.Runtime
}

// New creates a reconciler.
func New(reg *registry.Registry, rt runtime.Runtime) *Reconciler {
	return &Reconciler{registry: reg, runtime: rt}
}

// Run computes the set difference between desired (status=active in the
// registry) and actual (runtime running set), spawning the missing agents
// and killing the extra ones. One agent's failure never aborts the rest;
// every failure is collected into the result.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	desired := r.registry.ActiveAgents()
	desiredSet := make(map[string]bool, len(desired))
	for _, record := range desired {
		desiredSet[record.ID] = true
	}

	running, err := r.runtime.Running(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running agents: %w", err)
	}
	runningSet := make(map[string]bool, len(running))
	for _, id := range running {
		runningSet[id] = true
	}

	result := &Result{}

	// Spawn agents that should run but don't.
	for _, record := range desired {
		if runningSet[record.ID] {
			continue
		}
		if _, err := r.runtime.Spawn(ctx, record); err != nil {
			log.Printf("[Reconcile] spawn %s failed: %v", record.ID, err)
			result.Failures = append(result.Failures, Action{AgentID: record.ID, Op: "spawn", Err: err})
			continue
		}
		result.Spawned = append(result.Spawned, record.ID)
	}

	// Kill agents that run but shouldn't (deleted, or no longer active).
	sort.Strings(running)
	for _, id := range running {
		if desiredSet[id] {
			continue
		}
		if err := r.runtime.Kill(ctx, id); err != nil {
			log.Printf("[Reconcile] kill %s failed: %v", id, err)
			result.Failures = append(result.Failures, Action{AgentID: id, Op: "kill", Err: err})
			continue
		}
		result.Killed = append(result.Killed, id)
	}

	log.Printf("[Reconcile] %s", result.Summary())
	return result, nil
}
