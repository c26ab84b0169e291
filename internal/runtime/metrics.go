package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
)

// DockerMetrics samples container stats for agents spawned by a
// DockerRuntime.
type DockerMetrics struct {
	rt *DockerRuntime
}

// NewDockerMetrics creates a metrics provider over an existing runtime.
func NewDockerMetrics(rt *DockerRuntime) *DockerMetrics {
	return &DockerMetrics{rt: rt}
}

// Sample reads one stats snapshot for the agent's container.
func (m *DockerMetrics) Sample(ctx context.Context, agentID string) (Metrics, error) {
	c, err := m.rt.findContainer(ctx, agentID, false)
	if err != nil {
		return Metrics{}, err
	}

	stats, err := m.rt.cli.ContainerStats(ctx, c.ID, false)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read container stats: %w", err)
	}
	defer stats.Body.Close()

	var sample types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&sample); err != nil {
		return Metrics{}, fmt.Errorf("failed to decode container stats: %w", err)
	}

	inspect, err := m.rt.cli.ContainerInspect(ctx, c.ID)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
	if err != nil {
		return Metrics{}, fmt.Errorf("malformed container start time: %w", err)
	}

	return Metrics{
		CPUPercent:  cpuPercent(&sample),
		MemoryBytes: sample.MemoryStats.Usage,
		Uptime:      time.Since(started),
	}, nil
}

// cpuPercent computes CPU usage the way the docker CLI does: the delta of
// container CPU time over the delta of system CPU time, scaled by the
// number of online CPUs.
func cpuPercent(s *types.StatsJSON) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}

	return (cpuDelta / systemDelta) * online * 100.0
}
