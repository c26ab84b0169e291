package fleet

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AgentRecord is the registry's canonical configuration for a single agent.
// Records are persisted as a YAML snapshot and versioned: every mutation of
// the registry produces a new immutable commit of the full snapshot.
type AgentRecord struct {
	ID            string         `json:"id" yaml:"id"`                         // Unique within the registry, [A-Za-z0-9_-]{1,50}
	Name          string         `json:"name" yaml:"name"`                     // Human-readable display name
	SystemPrompt  string         `json:"system_prompt" yaml:"system_prompt"`   // Instructions the runtime hands to the agent process
	Status        AgentStatus    `json:"status" yaml:"status"`                 // Desired/observed lifecycle state
	ResourceLimits ResourceLimits `json:"resource_limits" yaml:"resource_limits"`
	Capabilities  []string       `json:"capabilities" yaml:"capabilities"`     // Free-form capability tags, searchable
	Relationships []Relationship `json:"relationships" yaml:"relationships"`   // Edges to other agents
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
	LastModified  time.Time      `json:"last_modified" yaml:"last_modified"`
}

// AgentStatus is the lifecycle state of an agent. status=active is the
// reconciler's signal that a live process should exist for the agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusError    AgentStatus = "error"
	AgentStatusCrashed  AgentStatus = "crashed"
	AgentStatusStarting AgentStatus = "starting"
	AgentStatusStopping AgentStatus = "stopping"
)

// Validate checks if the AgentStatus is a valid enum value.
func (s AgentStatus) Validate() error {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusError,
		AgentStatusCrashed, AgentStatusStarting, AgentStatusStopping:
		return nil
	default:
		return fmt.Errorf("unknown agent status: %q", s)
	}
}

// ResourceLimits bounds the resources an agent's runtime process may use.
// Zero values mean "use the registry default".
type ResourceLimits struct {
	CPUs     string `json:"cpus,omitempty" yaml:"cpus,omitempty"`           // e.g. "0.5", "2"
	Memory   string `json:"memory,omitempty" yaml:"memory,omitempty"`       // e.g. "512m", "2g"
	MaxTasks int    `json:"max_tasks,omitempty" yaml:"max_tasks,omitempty"` // Concurrent task cap
}

// Merge returns l with zero fields filled in from defaults.
func (l ResourceLimits) Merge(defaults ResourceLimits) ResourceLimits {
	out := l
	if out.CPUs == "" {
		out.CPUs = defaults.CPUs
	}
	if out.Memory == "" {
		out.Memory = defaults.Memory
	}
	if out.MaxTasks == 0 {
		out.MaxTasks = defaults.MaxTasks
	}
	return out
}

// RelationshipType classifies a directed edge between two agents.
type RelationshipType string

const (
	RelationshipCollaborator RelationshipType = "collaborator"
	RelationshipSupervisor   RelationshipType = "supervisor"
	RelationshipSubordinate  RelationshipType = "subordinate"
	RelationshipPeer         RelationshipType = "peer"
)

// Validate checks if the RelationshipType is a valid enum value.
func (r RelationshipType) Validate() error {
	switch r {
	case RelationshipCollaborator, RelationshipSupervisor,
		RelationshipSubordinate, RelationshipPeer:
		return nil
	default:
		return fmt.Errorf("unknown relationship type: %q", r)
	}
}

// Relationship is a directed edge from its owning agent to TargetAgentID.
type Relationship struct {
	TargetAgentID string           `json:"target_agent_id" yaml:"target_agent_id"`
	Type          RelationshipType `json:"type" yaml:"type"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
}

// Priority ranks tasks and messages. The broker dequeues critical before
// high before medium before low, FIFO within a band.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Validate checks if the Priority is a valid enum value.
func (p Priority) Validate() error {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	default:
		return fmt.Errorf("unknown priority: %q", p)
	}
}

// Rank returns the numeric ordering of a priority (higher dequeues first).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

const (
	// MinPromptLength and MaxPromptLength bound an agent's system prompt.
	MinPromptLength = 10
	MaxPromptLength = 10000
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// ValidAgentID reports whether id matches the agent ID format rule.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// dangerousPromptMarkers are substrings rejected in system prompts. They
// cover code-execution markers, shell metacharacter sequences, and script
// injection. Matching is case-insensitive.
var dangerousPromptMarkers = []string{
	"eval(",
	"exec(",
	"$(",
	"`",
	"; rm ",
	";rm ",
	"<script",
}

// ValidateSystemPrompt rejects empty, undersized, oversized, or dangerous
// system prompts. Returns a *ValidationError describing the first failure.
func ValidateSystemPrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < MinPromptLength {
		return &ValidationError{Field: "system_prompt", Reason: fmt.Sprintf("must be at least %d characters", MinPromptLength)}
	}
	if len(prompt) > MaxPromptLength {
		return &ValidationError{Field: "system_prompt", Reason: fmt.Sprintf("must be at most %d characters", MaxPromptLength)}
	}
	lower := strings.ToLower(prompt)
	for _, marker := range dangerousPromptMarkers {
		if strings.Contains(lower, marker) {
			return &ValidationError{Field: "system_prompt", Reason: fmt.Sprintf("contains disallowed pattern %q", marker)}
		}
	}
	return nil
}

// Validate checks if the AgentRecord has valid field values.
func (a *AgentRecord) Validate() error {
	if !ValidAgentID(a.ID) {
		return &ValidationError{Field: "id", Reason: "must match [A-Za-z0-9_-]{1,50}"}
	}
	if err := ValidateSystemPrompt(a.SystemPrompt); err != nil {
		return err
	}
	if err := a.Status.Validate(); err != nil {
		return &ValidationError{Field: "status", Reason: err.Error()}
	}
	for i, rel := range a.Relationships {
		if !ValidAgentID(rel.TargetAgentID) {
			return &ValidationError{Field: "relationships", Reason: fmt.Sprintf("invalid target agent id at index %d", i)}
		}
		if err := rel.Type.Validate(); err != nil {
			return &ValidationError{Field: "relationships", Reason: err.Error()}
		}
	}
	return nil
}

// Clone returns a deep copy of the record. The registry hands clones to
// callers so external code can never mutate the canonical map.
func (a *AgentRecord) Clone() *AgentRecord {
	out := *a
	out.Capabilities = append([]string(nil), a.Capabilities...)
	out.Relationships = append([]Relationship(nil), a.Relationships...)
	return &out
}

// Commit is one immutable entry in the registry's version history.
type Commit struct {
	Hash      string    `json:"hash" yaml:"hash"`
	Message   string    `json:"message" yaml:"message"`
	Author    string    `json:"author" yaml:"author"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
