// Package broker routes prioritized messages between agents. Senders
// enqueue; a delivery loop drains the queue highest priority first and
// archives each delivered message into bounded per-agent Redis history.
package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warrenhq/warren/internal/notify"
	"github.com/warrenhq/warren/pkg/fleet"
)

const (
	// DefaultMaxQueueSize bounds the pending queue.
	DefaultMaxQueueSize = 1000

	// DefaultMaxHistoryPerAgent bounds each agent's archived messages.
	DefaultMaxHistoryPerAgent = 100

	// DefaultTickInterval is the delivery loop cadence.
	DefaultTickInterval = 100 * time.Millisecond
)

// AgentDirectory answers existence and enumeration of message endpoints.
// The registry satisfies it. Enumeration backs the broadcast fallback: a
// broadcast with no subscription for its type reaches every known agent.
type AgentDirectory interface {
	Exists(id string) bool
	AgentIDs() []string
}

// Options configures a Broker.
type Options struct {
	MaxQueueSize int           // 0 uses DefaultMaxQueueSize
	TickInterval time.Duration // 0 uses DefaultTickInterval

	// Notifier receives one message_delivered event per recipient. Nil
	// disables.
	Notifier *notify.Fanout

	// Now is swappable for tests.
	Now func() time.Time
}

// Broker is the message switchboard. Enqueueing and delivery are decoupled:
// SendMessage returns once the message is accepted into the queue, and the
// delivery loop drains the queue on a fixed tick.
type Broker struct {
	mu    sync.Mutex
	queue *queue
	subs  []fleet.Subscription

	history   *History
	directory AgentDirectory
	notifier  *notify.Fanout
	tick      time.Duration
	now       func() time.Time
}

// New creates a broker archiving into the given history.
func New(history *History, directory AgentDirectory, opts Options) *Broker {
	if opts.MaxQueueSize == 0 {
		opts.MaxQueueSize = DefaultMaxQueueSize
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Broker{
		queue:     newQueue(opts.MaxQueueSize),
		history:   history,
		directory: directory,
		notifier:  opts.Notifier,
		tick:      opts.TickInterval,
		now:       opts.Now,
	}
}

// SendMessageRequest is the caller-supplied part of a message.
type SendMessageRequest struct {
	From             string
	To               string // Agent ID or fleet.BroadcastRecipient
	Type             fleet.MessageType
	Content          string
	Priority         fleet.Priority
	RequiresApproval bool
	Metadata         map[string]string
}

// SendMessage validates and enqueues a message, assigning its ID and
// timestamp. Returns fleet.ErrQueueFull when the queue is at capacity; the
// sender decides whether to retry.
func (b *Broker) SendMessage(req SendMessageRequest) (*fleet.AgentMessage, error) {
	if req.Priority == "" {
		req.Priority = fleet.PriorityMedium
	}
	if req.Type == "" {
		req.Type = fleet.MessageTypeQuery
	}

	msg := &fleet.AgentMessage{
		ID:               uuid.New().String(),
		From:             req.From,
		To:               req.To,
		Type:             req.Type,
		Content:          req.Content,
		Priority:         req.Priority,
		Timestamp:        b.now().UTC(),
		RequiresApproval: req.RequiresApproval,
		Metadata:         req.Metadata,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if b.directory != nil {
		if !b.directory.Exists(msg.From) {
			return nil, fmt.Errorf("sender %s: %w", msg.From, fleet.ErrNotFound)
		}
		if msg.To != fleet.BroadcastRecipient && !b.directory.Exists(msg.To) {
			return nil, fmt.Errorf("recipient %s: %w", msg.To, fleet.ErrNotFound)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.queue.Push(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// BroadcastMessage enqueues a fan-out message delivered to every subscribed
// agent except the sender.
func (b *Broker) BroadcastMessage(from, content string, priority fleet.Priority) (*fleet.AgentMessage, error) {
	return b.SendMessage(SendMessageRequest{
		From:     from,
		To:       fleet.BroadcastRecipient,
		Type:     fleet.MessageTypeBroadcast,
		Content:  content,
		Priority: priority,
	})
}

// SubscribeAgent registers a standing subscription. A nil filter accepts
// every message of the type.
func (b *Broker) SubscribeAgent(agentID string, msgType fleet.MessageType, filter func(*fleet.AgentMessage) bool) error {
	if err := msgType.Validate(); err != nil {
		return &fleet.ValidationError{Field: "type", Reason: err.Error()}
	}
	if b.directory != nil && !b.directory.Exists(agentID) {
		return fmt.Errorf("agent %s: %w", agentID, fleet.ErrNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fleet.Subscription{AgentID: agentID, MessageType: msgType, Filter: filter})
	return nil
}

// UnsubscribeAgent removes the agent's subscriptions for one type, or all of
// them when msgType is empty.
func (b *Broker) UnsubscribeAgent(agentID string, msgType fleet.MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	removed := 0
	for _, sub := range b.subs {
		if sub.AgentID == agentID && (msgType == "" || sub.MessageType == msgType) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	b.subs = kept
	return removed
}

// Run drains the queue on every tick until the context is cancelled.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()

	log.Printf("[Broker] Delivery loop started (tick %s)", b.tick)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Broker] Delivery loop stopped")
			return
		case <-ticker.C:
			b.DeliverPending(ctx)
		}
	}
}

// DeliverPending drains the queue once, highest priority first, and returns
// how many messages were delivered. Archive failures are logged per message
// and never stop the drain.
func (b *Broker) DeliverPending(ctx context.Context) int {
	delivered := 0
	for {
		b.mu.Lock()
		msg := b.queue.Pop()
		subs := make([]fleet.Subscription, len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()

		if msg == nil {
			return delivered
		}
		b.deliver(ctx, msg, subs)
		delivered++
	}
}

// deliver archives the message for the sender and every recipient and emits
// one delivery event per recipient.
func (b *Broker) deliver(ctx context.Context, msg *fleet.AgentMessage, subs []fleet.Subscription) {
	recipients := b.recipients(msg, subs)

	if err := b.history.Archive(ctx, msg.From, msg); err != nil {
		log.Printf("[Broker] Failed to archive message %s for sender %s: %v", msg.ID, msg.From, err)
	}
	for _, agentID := range recipients {
		if err := b.history.Archive(ctx, agentID, msg); err != nil {
			log.Printf("[Broker] Failed to archive message %s for %s: %v", msg.ID, agentID, err)
			continue
		}
		if b.notifier != nil {
			b.notifier.Publish(ctx, notify.MessageDelivered{
				MessageID: msg.ID,
				From:      msg.From,
				To:        agentID,
				Type:      string(msg.Type),
				Time:      b.now().UTC(),
			})
		}
	}
}

// recipients resolves the delivery set: the direct addressee, plus every
// subscribed agent whose subscription matches. A broadcast with no
// subscription registered for its type falls back to every known agent.
// The sender never receives its own message.
func (b *Broker) recipients(msg *fleet.AgentMessage, subs []fleet.Subscription) []string {
	seen := make(map[string]bool)
	var out []string

	if msg.To != fleet.BroadcastRecipient {
		seen[msg.To] = true
		out = append(out, msg.To)
	}
	typeSubscribed := false
	for i := range subs {
		sub := &subs[i]
		if sub.MessageType == msg.Type || (sub.MessageType == fleet.MessageTypeBroadcast && msg.To == fleet.BroadcastRecipient) {
			typeSubscribed = true
		}
		if sub.AgentID == msg.From || seen[sub.AgentID] {
			continue
		}
		if sub.Matches(msg) {
			seen[sub.AgentID] = true
			out = append(out, sub.AgentID)
		}
	}
	if msg.To == fleet.BroadcastRecipient && !typeSubscribed && b.directory != nil {
		for _, agentID := range b.directory.AgentIDs() {
			if agentID == msg.From || seen[agentID] {
				continue
			}
			seen[agentID] = true
			out = append(out, agentID)
		}
	}
	return out
}

// GetMessageHistory returns an agent's archived messages, newest first.
func (b *Broker) GetMessageHistory(ctx context.Context, agentID string, limit int) ([]*fleet.AgentMessage, error) {
	return b.history.Messages(ctx, agentID, limit)
}

// Stats is a point-in-time broker snapshot.
type Stats struct {
	QueueDepth        int
	Subscriptions     int
	AgentsWithHistory int
	TotalStored       int64
}

// GetStats reports queue depth, subscription count, and history volume.
func (b *Broker) GetStats(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	stats := Stats{QueueDepth: b.queue.Len(), Subscriptions: len(b.subs)}
	b.mu.Unlock()

	agents, err := b.history.Agents(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.AgentsWithHistory = len(agents)

	total, err := b.history.TotalStored(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.TotalStored = total
	return stats, nil
}
