package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/warrenhq/warren/pkg/fleet"
)

// agentHealthPort is the port agent images expose for health checks. The
// host side is bound ephemerally.
const agentHealthPort = "8080/tcp"

// DockerConfig configures the Docker-backed runtime.
type DockerConfig struct {
	InstanceName string
	AgentImage   string // image every agent container runs
	NetworkName  string // optional; empty uses the default bridge
}

// DockerRuntime runs each agent as a labeled container. Discovery goes
// through labels rather than local state, so a restarted daemon still finds
// the agents it spawned earlier.
type DockerRuntime struct {
	cli *client.Client
	cfg DockerConfig
}

// NewDockerRuntime creates a Docker client and validates the daemon is
// accessible.
func NewDockerRuntime(ctx context.Context, cfg DockerConfig) (*DockerRuntime, error) {
	if cfg.InstanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if cfg.AgentImage == "" {
		return nil, fmt.Errorf("agent image cannot be empty")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Ensure Docker is running:
  • macOS: Docker Desktop
  • Linux: sudo systemctl start docker`, err)
	}

	return &DockerRuntime{cli: cli, cfg: cfg}, nil
}

// Spawn creates and starts a container for the agent. Returns the container
// ID as the handle.
func (d *DockerRuntime) Spawn(ctx context.Context, record *fleet.AgentRecord) (string, error) {
	containerName := AgentContainerName(d.cfg.InstanceName, record.ID)

	healthPort := nat.Port(agentHealthPort)
	containerConfig := &container.Config{
		Image: d.cfg.AgentImage,
		Env: []string{
			fmt.Sprintf("WARREN_INSTANCE_NAME=%s", d.cfg.InstanceName),
			fmt.Sprintf("WARREN_AGENT_ID=%s", record.ID),
			fmt.Sprintf("WARREN_AGENT_NAME=%s", record.Name),
			fmt.Sprintf("WARREN_SYSTEM_PROMPT=%s", record.SystemPrompt),
		},
		ExposedPorts: nat.PortSet{healthPort: struct{}{}},
		Labels:       BuildLabels(d.cfg.InstanceName, GenerateRunID(), record.ID),
	}

	resources, err := resourcesFor(record.ResourceLimits)
	if err != nil {
		return "", fmt.Errorf("invalid resource limits for agent %s: %w", record.ID, err)
	}

	hostConfig := &container.HostConfig{
		Resources: resources,
		// Ephemeral host port for the health endpoint.
		PortBindings: nat.PortMap{healthPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}}},
		AutoRemove:   false, // cleanup is explicit so exit state stays inspectable
	}
	if d.cfg.NetworkName != "" {
		hostConfig.NetworkMode = container.NetworkMode(d.cfg.NetworkName)
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create agent container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		d.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start agent container: %w", err)
	}

	return resp.ID, nil
}

// Kill stops and removes the agent's container.
func (d *DockerRuntime) Kill(ctx context.Context, agentID string) error {
	c, err := d.findContainer(ctx, agentID, true)
	if err != nil {
		return err
	}

	timeout := 10 // seconds
	if err := d.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop agent container: %w", err)
	}
	if err := d.cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove agent container: %w", err)
	}
	return nil
}

// Status reports the container state for an agent.
func (d *DockerRuntime) Status(ctx context.Context, agentID string) (Status, error) {
	c, err := d.findContainer(ctx, agentID, true)
	if err != nil {
		if strings.Contains(err.Error(), "no container") {
			return StatusNotFound, nil
		}
		return "", err
	}
	if c.State == "running" {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Running lists agent IDs with a running container for this instance.
func (d *DockerRuntime) Running(ctx context.Context) ([]string, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelInstanceName, d.cfg.InstanceName))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentAgent))

	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{Filters: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to list agent containers: %w", err)
	}

	var ids []string
	for _, c := range containers {
		if id, ok := c.Labels[LabelAgentID]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// findContainer locates the container for an agent via labels.
func (d *DockerRuntime) findContainer(ctx context.Context, agentID string, includeStopped bool) (*types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", LabelInstanceName, d.cfg.InstanceName))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelAgentID, agentID))

	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     includeStopped,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("no container for agent '%s'", agentID)
	}
	return &containers[0], nil
}

// resourcesFor maps registry resource limits onto Docker resource settings.
func resourcesFor(limits fleet.ResourceLimits) (container.Resources, error) {
	var res container.Resources

	if limits.CPUs != "" {
		cpus, err := strconv.ParseFloat(limits.CPUs, 64)
		if err != nil || cpus <= 0 {
			return res, fmt.Errorf("invalid cpus value %q", limits.CPUs)
		}
		res.NanoCPUs = int64(cpus * 1e9)
	}

	if limits.Memory != "" {
		bytes, err := parseMemory(limits.Memory)
		if err != nil {
			return res, err
		}
		res.Memory = bytes
	}

	return res, nil
}

// parseMemory converts "512m" / "2g" / "1024k" / "1073741824" to bytes.
func parseMemory(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty memory value")
	}

	multiplier := int64(1)
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1 << 10
		s = s[:len(s)-1]
	case 'm':
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case 'g':
		multiplier = 1 << 30
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid memory value %q", s)
	}
	return value * multiplier, nil
}
