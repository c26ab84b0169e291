package fleet

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validMessage() *AgentMessage {
	return &AgentMessage{
		ID:        uuid.New().String(),
		From:      "planner",
		To:        "builder-1",
		Type:      MessageTypeTaskDelegation,
		Content:   "please pick up task-42",
		Priority:  PriorityMedium,
		Timestamp: time.Now().UTC(),
	}
}

func TestAgentMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AgentMessage)
		wantErr bool
	}{
		{"valid", func(*AgentMessage) {}, false},
		{"broadcast recipient", func(m *AgentMessage) { m.To = BroadcastRecipient }, false},
		{"bad sender", func(m *AgentMessage) { m.From = "bad sender!" }, true},
		{"bad recipient", func(m *AgentMessage) { m.To = "bad recipient!" }, true},
		{"empty content", func(m *AgentMessage) { m.Content = "" }, true},
		{"oversized content", func(m *AgentMessage) { m.Content = strings.Repeat("x", MaxContentLength+1) }, true},
		{"content at limit", func(m *AgentMessage) { m.Content = strings.Repeat("x", MaxContentLength) }, false},
		{"unknown type", func(m *AgentMessage) { m.Type = "gossip" }, true},
		{"unknown priority", func(m *AgentMessage) { m.Priority = "WHENEVER" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(msg)
			err := msg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSubscriptionMatches(t *testing.T) {
	msg := validMessage()

	sub := &Subscription{AgentID: "builder-1", MessageType: MessageTypeTaskDelegation}
	if !sub.Matches(msg) {
		t.Error("type match should accept")
	}

	sub = &Subscription{AgentID: "builder-1", MessageType: MessageTypeAlert}
	if sub.Matches(msg) {
		t.Error("type mismatch should reject")
	}

	// A broadcast subscription receives any broadcast regardless of type.
	broadcast := validMessage()
	broadcast.To = BroadcastRecipient
	sub = &Subscription{AgentID: "builder-1", MessageType: MessageTypeBroadcast}
	if !sub.Matches(broadcast) {
		t.Error("broadcast subscription should accept broadcast messages")
	}
	if sub.Matches(msg) {
		t.Error("broadcast subscription should not accept direct messages of other types")
	}

	// Filters narrow a matching subscription.
	sub = &Subscription{
		AgentID:     "builder-1",
		MessageType: MessageTypeTaskDelegation,
		Filter:      func(m *AgentMessage) bool { return m.Priority == PriorityCritical },
	}
	if sub.Matches(msg) {
		t.Error("filter should reject medium priority")
	}
	msg.Priority = PriorityCritical
	if !sub.Matches(msg) {
		t.Error("filter should accept critical priority")
	}
}

func TestMessageInvolves(t *testing.T) {
	msg := validMessage()
	if !msg.Involves("planner") || !msg.Involves("builder-1") {
		t.Error("sender and recipient are both involved")
	}
	if msg.Involves("bystander") {
		t.Error("unrelated agent should not be involved")
	}
}
