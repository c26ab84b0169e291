package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/warrenhq/warren/pkg/fleet"
)

// HistoryKey returns the Redis key for an agent's message history list.
func HistoryKey(instanceName, agentID string) string {
	return fmt.Sprintf("warren:%s:history:%s", instanceName, agentID)
}

// HistoryAgentsKey returns the Redis key of the set of agents with history.
func HistoryAgentsKey(instanceName string) string {
	return fmt.Sprintf("warren:%s:history_agents", instanceName)
}

// History is the instance-scoped Redis archive of delivered messages. Each
// agent gets one bounded list holding the messages it sent or received;
// archiving past the bound evicts the oldest entries.
type History struct {
	rdb          *redis.Client
	instanceName string
	maxPerAgent  int
}

// NewHistory creates a history archive for the given instance.
func NewHistory(redisOpts *redis.Options, instanceName string, maxPerAgent int) (*History, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if maxPerAgent <= 0 {
		return nil, fmt.Errorf("max history per agent must be positive, got %d", maxPerAgent)
	}

	return &History{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		maxPerAgent:  maxPerAgent,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (h *History) Close() error {
	return h.rdb.Close()
}

// Ping verifies Redis connectivity.
func (h *History) Ping(ctx context.Context) error {
	return h.rdb.Ping(ctx).Err()
}

// Archive appends a message to an agent's history list, trimming the list
// to the per-agent bound and registering the agent in the history set.
func (h *History) Archive(ctx context.Context, agentID string, msg *fleet.AgentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := HistoryKey(h.instanceName, agentID)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-h.maxPerAgent), -1)
	pipe.SAdd(ctx, HistoryAgentsKey(h.instanceName), agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive message for %s: %w", agentID, err)
	}
	return nil
}

// Messages returns an agent's archived messages, newest first. limit <= 0
// returns everything retained.
func (h *History) Messages(ctx context.Context, agentID string, limit int) ([]*fleet.AgentMessage, error) {
	key := HistoryKey(h.instanceName, agentID)
	raw, err := h.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", agentID, err)
	}

	messages := make([]*fleet.AgentMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg fleet.AgentMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			return nil, fmt.Errorf("corrupt history entry for %s: %w", agentID, err)
		}
		messages = append(messages, &msg)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// Agents returns every agent that has archived history.
func (h *History) Agents(ctx context.Context) ([]string, error) {
	agents, err := h.rdb.SMembers(ctx, HistoryAgentsKey(h.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history agents: %w", err)
	}
	return agents, nil
}

// TotalStored returns the number of retained messages across all agents.
func (h *History) TotalStored(ctx context.Context) (int64, error) {
	agents, err := h.Agents(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, agentID := range agents {
		n, err := h.rdb.LLen(ctx, HistoryKey(h.instanceName, agentID)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count history for %s: %w", agentID, err)
		}
		total += n
	}
	return total, nil
}
