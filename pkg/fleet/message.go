package fleet

import (
	"fmt"
	"time"
)

// BroadcastRecipient is the reserved "to" value for fan-out messages.
const BroadcastRecipient = "broadcast"

// MaxContentLength bounds a message body.
const MaxContentLength = 10000

// MessageType classifies an inter-agent message for subscription routing.
type MessageType string

const (
	MessageTypeTaskDelegation MessageType = "task_delegation"
	MessageTypeStatusUpdate   MessageType = "status_update"
	MessageTypeQuery          MessageType = "query"
	MessageTypeResponse       MessageType = "response"
	MessageTypeAlert          MessageType = "alert"
	MessageTypeBroadcast      MessageType = "broadcast"
)

// Validate checks if the MessageType is a valid enum value.
func (m MessageType) Validate() error {
	switch m {
	case MessageTypeTaskDelegation, MessageTypeStatusUpdate, MessageTypeQuery,
		MessageTypeResponse, MessageTypeAlert, MessageTypeBroadcast:
		return nil
	default:
		return fmt.Errorf("unknown message type: %q", m)
	}
}

// AgentMessage is one inter-agent message. Messages are immutable once
// enqueued: the broker delivers them, archives them into bounded per-agent
// history, and never updates them.
type AgentMessage struct {
	ID               string            `json:"id"`
	From             string            `json:"from"`
	To               string            `json:"to"` // Agent ID or BroadcastRecipient
	Type             MessageType       `json:"type"`
	Content          string            `json:"content"`
	Priority         Priority          `json:"priority"`
	Timestamp        time.Time         `json:"timestamp"`
	RequiresApproval bool              `json:"requires_approval,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the AgentMessage has valid field values.
func (m *AgentMessage) Validate() error {
	if !ValidAgentID(m.From) {
		return &ValidationError{Field: "from", Reason: "must match [A-Za-z0-9_-]{1,50}"}
	}
	if m.To != BroadcastRecipient && !ValidAgentID(m.To) {
		return &ValidationError{Field: "to", Reason: "must be a valid agent id or " + BroadcastRecipient}
	}
	if m.Content == "" {
		return &ValidationError{Field: "content", Reason: "cannot be empty"}
	}
	if len(m.Content) > MaxContentLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d characters", MaxContentLength)}
	}
	if err := m.Type.Validate(); err != nil {
		return &ValidationError{Field: "type", Reason: err.Error()}
	}
	if err := m.Priority.Validate(); err != nil {
		return &ValidationError{Field: "priority", Reason: err.Error()}
	}
	return nil
}

// Involves reports whether the agent is the sender or recipient.
func (m *AgentMessage) Involves(agentID string) bool {
	return m.From == agentID || m.To == agentID
}

// Subscription is a standing registration by an agent to receive messages of
// a given type. A nil Filter accepts every message of the type.
type Subscription struct {
	AgentID     string
	MessageType MessageType
	Filter      func(*AgentMessage) bool
}

// Matches reports whether the subscription accepts the message. A
// subscription for MessageTypeBroadcast receives every broadcast regardless
// of the message's own type.
func (s *Subscription) Matches(m *AgentMessage) bool {
	if s.MessageType != m.Type && !(s.MessageType == MessageTypeBroadcast && m.To == BroadcastRecipient) {
		return false
	}
	if s.Filter != nil && !s.Filter(m) {
		return false
	}
	return true
}
