package runtime

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for Warren containers
const (
	LabelProject      = "warren.project"
	LabelInstanceName = "warren.instance.name"
	LabelRunID        = "warren.run_id"
	LabelComponent    = "warren.component"
	LabelAgentID      = "warren.agent.id"
)

// ComponentAgent marks containers that run an agent process.
const ComponentAgent = "agent"

// BuildLabels creates the standard label set for a Warren agent container.
func BuildLabels(instanceName, runID, agentID string) map[string]string {
	return map[string]string{
		LabelProject:      "true",
		LabelInstanceName: instanceName,
		LabelRunID:        runID,
		LabelComponent:    ComponentAgent,
		LabelAgentID:      agentID,
	}
}

// GenerateRunID creates a new UUID for a spawn invocation.
func GenerateRunID() string {
	return uuid.New().String()
}

// AgentContainerName returns the container name for an agent.
func AgentContainerName(instanceName, agentID string) string {
	return fmt.Sprintf("warren-%s-agent-%s", instanceName, agentID)
}
