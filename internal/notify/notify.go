// Package notify carries already-formed event payloads from the core
// subsystems to pluggable sinks. The core only emits plain data; a sink's
// transport (websocket, log line, test capture) is its own concern.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Kind names an event category.
type Kind string

const (
	KindAgentCreated     Kind = "agent_created"
	KindAgentDeleted     Kind = "agent_deleted"
	KindTaskCreated      Kind = "task_created"
	KindTaskCompleted    Kind = "task_completed"
	KindMessageDelivered Kind = "message_delivered"
	KindRollback         Kind = "rollback"
)

// Event is a typed notification payload.
type Event interface {
	Kind() Kind
}

// AgentCreated is emitted after a registry create commits.
type AgentCreated struct {
	AgentID string    `json:"agent_id"`
	Name    string    `json:"name"`
	Time    time.Time `json:"time"`
}

func (AgentCreated) Kind() Kind { return KindAgentCreated }

// AgentDeleted is emitted after a registry delete commits.
type AgentDeleted struct {
	AgentID string    `json:"agent_id"`
	Time    time.Time `json:"time"`
}

func (AgentDeleted) Kind() Kind { return KindAgentDeleted }

// TaskCreated is emitted after a task persists to the board.
type TaskCreated struct {
	TaskID      string    `json:"task_id"`
	AgentID     string    `json:"agent_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Time        time.Time `json:"time"`
}

func (TaskCreated) Kind() Kind { return KindTaskCreated }

// TaskCompleted is emitted when a task reaches done.
type TaskCompleted struct {
	TaskID  string    `json:"task_id"`
	AgentID string    `json:"agent_id"`
	Time    time.Time `json:"time"`
}

func (TaskCompleted) Kind() Kind { return KindTaskCompleted }

// MessageDelivered is emitted once per recipient on broker delivery.
type MessageDelivered struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
}

func (MessageDelivered) Kind() Kind { return KindMessageDelivered }

// Rollback is emitted after the registry restores a prior commit.
type Rollback struct {
	Hash string    `json:"hash"`
	Time time.Time `json:"time"`
}

func (Rollback) Kind() Kind { return KindRollback }

// Sink receives events. Implementations must not block for long; the core
// publishes synchronously inside its own operations.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout is an observer list of sinks owned by the emitting component. A
// sink failure is logged and never fails the operation that emitted the
// event.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Attach adds a sink.
func (f *Fanout) Attach(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

// Publish delivers the event to every attached sink.
func (f *Fanout) Publish(ctx context.Context, event Event) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			log.Printf("[Notify] sink error for %s: %v", event.Kind(), err)
		}
	}
}

// LogSink writes events as JSON lines via the standard logger.
type LogSink struct{}

// Publish logs the event.
func (LogSink) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	log.Printf("[Event] %s %s", event.Kind(), payload)
	return nil
}
