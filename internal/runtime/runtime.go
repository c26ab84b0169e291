// Package runtime is Warren's boundary to the external agent-runtime: the
// process layer that actually executes an agent's work. The core consumes
// spawn/kill/status primitives here; it never designs the runtime itself.
package runtime

import (
	"context"
	"time"

	"github.com/warrenhq/warren/pkg/fleet"
)

// Status is the observed state of an agent process.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusNotFound Status = "not_found"
)

// Runtime spawns and kills live agent processes. The reconciler drives it to
// make the running set match the registry's desired state.
type Runtime interface {
	// Spawn starts a process for the agent and returns an opaque handle.
	Spawn(ctx context.Context, record *fleet.AgentRecord) (string, error)

	// Kill stops the agent's process. Killing an agent that is not running
	// is an error.
	Kill(ctx context.Context, agentID string) error

	// Status reports the observed state of the agent's process.
	Status(ctx context.Context, agentID string) (Status, error)

	// Running lists the agent IDs with a live process.
	Running(ctx context.Context) ([]string, error)
}

// Metrics is the platform-neutral process metrics sample the core consumes.
type Metrics struct {
	CPUPercent  float64
	MemoryBytes uint64
	Uptime      time.Duration
}

// MetricsProvider samples process metrics for one agent. Implementations are
// per-platform; the Docker provider reads container stats.
type MetricsProvider interface {
	Sample(ctx context.Context, agentID string) (Metrics, error)
}
