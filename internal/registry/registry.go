// Package registry is the single source of truth for agent configuration.
// Every mutation commits the full state snapshot to an append-only version
// store, so the whole fleet's desired state can be rolled back to any prior
// commit and reconciled against the live runtime.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warrenhq/warren/internal/history"
	"github.com/warrenhq/warren/internal/notify"
	"github.com/warrenhq/warren/pkg/fleet"
)

// DefaultResourceLimits are merged into every new agent's limits.
var DefaultResourceLimits = fleet.ResourceLimits{
	CPUs:     "1",
	Memory:   "512m",
	MaxTasks: 5,
}

// Options configures a Registry.
type Options struct {
	// Defaults are merged into every created agent's resource limits.
	// Zero value falls back to DefaultResourceLimits.
	Defaults fleet.ResourceLimits

	// Notifier receives agent_created / agent_deleted / rollback events.
	// Nil disables notifications.
	Notifier *notify.Fanout

	// Now is swappable for tests.
	Now func() time.Time
}

// Registry holds the canonical in-memory agent map behind one serializing
// lock. Every mutating call applies to the map, persists the full snapshot,
// and commits, in that order. If the commit fails after the state changed,
// the error is surfaced but the state is not rolled back; callers can see
// the staleness through GetCommitHistory and retry.
type Registry struct {
	mu       sync.Mutex
	agents   map[string]*fleet.AgentRecord
	store    history.Store
	defaults fleet.ResourceLimits
	notifier *notify.Fanout
	now      func() time.Time

	snapshotBytes int // size of the last persisted snapshot
}

// New creates a registry backed by the given version store. If the store
// already has commits, the latest snapshot is loaded so a restart resumes
// from the committed state.
func New(ctx context.Context, store history.Store, opts Options) (*Registry, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Defaults == (fleet.ResourceLimits{}) {
		opts.Defaults = DefaultResourceLimits
	}

	r := &Registry{
		agents:   make(map[string]*fleet.AgentRecord),
		store:    store,
		defaults: opts.Defaults,
		notifier: opts.Notifier,
		now:      opts.Now,
	}

	commits, err := store.Log(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read store history: %w", err)
	}
	if len(commits) > 0 {
		snap, err := store.Checkout(ctx, commits[0].Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		agents, err := decodeSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latest snapshot: %w", err)
		}
		r.agents = agents
		r.snapshotBytes = len(snap)
		log.Printf("[Registry] Loaded %d agents from commit %.8s", len(agents), commits[0].Hash)
	}

	return r, nil
}

// AgentConfig is the caller-supplied part of a new agent.
type AgentConfig struct {
	ID             string
	Name           string
	SystemPrompt   string
	Capabilities   []string
	ResourceLimits fleet.ResourceLimits
}

// CreateAgent validates the config, persists the new record with
// status=inactive, and commits. Fails with fleet.ErrAlreadyExists if the ID
// is taken, or a *fleet.ValidationError before any state changes.
func (r *Registry) CreateAgent(ctx context.Context, cfg AgentConfig) (*fleet.AgentRecord, error) {
	if !fleet.ValidAgentID(cfg.ID) {
		return nil, &fleet.ValidationError{Field: "id", Reason: "must match [A-Za-z0-9_-]{1,50}"}
	}
	if err := fleet.ValidateSystemPrompt(cfg.SystemPrompt); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[cfg.ID]; exists {
		return nil, fmt.Errorf("agent %s: %w", cfg.ID, fleet.ErrAlreadyExists)
	}

	now := r.now().UTC()
	record := &fleet.AgentRecord{
		ID:             cfg.ID,
		Name:           cfg.Name,
		SystemPrompt:   cfg.SystemPrompt,
		Status:         fleet.AgentStatusInactive,
		ResourceLimits: cfg.ResourceLimits.Merge(r.defaults),
		Capabilities:   append([]string(nil), cfg.Capabilities...),
		CreatedAt:      now,
		LastModified:   now,
	}

	r.agents[cfg.ID] = record
	if _, err := r.persistLocked(ctx, fmt.Sprintf("Created agent %s", cfg.ID)); err != nil {
		return nil, err
	}

	if r.notifier != nil {
		r.notifier.Publish(ctx, notify.AgentCreated{AgentID: record.ID, Name: record.Name, Time: now})
	}

	return record.Clone(), nil
}

// AgentUpdate is a partial update; nil fields are left unchanged.
type AgentUpdate struct {
	Name           *string
	SystemPrompt   *string
	Capabilities   []string
	ResourceLimits *fleet.ResourceLimits
	Status         *fleet.AgentStatus
}

// UpdateAgent merges the partial update into an existing record, bumps
// lastModified, and commits.
func (r *Registry) UpdateAgent(ctx context.Context, id string, update AgentUpdate) (*fleet.AgentRecord, error) {
	if update.SystemPrompt != nil {
		if err := fleet.ValidateSystemPrompt(*update.SystemPrompt); err != nil {
			return nil, err
		}
	}
	if update.Status != nil {
		if err := update.Status.Validate(); err != nil {
			return nil, &fleet.ValidationError{Field: "status", Reason: err.Error()}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, fleet.ErrNotFound)
	}

	if update.Name != nil {
		record.Name = *update.Name
	}
	if update.SystemPrompt != nil {
		record.SystemPrompt = *update.SystemPrompt
	}
	if update.Capabilities != nil {
		record.Capabilities = append([]string(nil), update.Capabilities...)
	}
	if update.ResourceLimits != nil {
		record.ResourceLimits = update.ResourceLimits.Merge(r.defaults)
	}
	if update.Status != nil {
		record.Status = *update.Status
	}
	record.LastModified = r.now().UTC()

	if _, err := r.persistLocked(ctx, fmt.Sprintf("Updated agent %s", id)); err != nil {
		return nil, err
	}

	return record.Clone(), nil
}

// UpdateAgentStatus sets only the lifecycle status of an agent.
func (r *Registry) UpdateAgentStatus(ctx context.Context, id string, status fleet.AgentStatus) error {
	if err := status.Validate(); err != nil {
		return &fleet.ValidationError{Field: "status", Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, fleet.ErrNotFound)
	}

	record.Status = status
	record.LastModified = r.now().UTC()

	_, err := r.persistLocked(ctx, fmt.Sprintf("Updated status of agent %s to %s", id, status))
	return err
}

// DeleteAgent removes the record and its relationships (both directions) and
// commits. Cascading task deletion is the caller's responsibility.
func (r *Registry) DeleteAgent(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("agent %s: %w", id, fleet.ErrNotFound)
	}

	delete(r.agents, id)

	// Drop edges pointing at the removed agent.
	for _, record := range r.agents {
		kept := record.Relationships[:0]
		for _, rel := range record.Relationships {
			if rel.TargetAgentID != id {
				kept = append(kept, rel)
			}
		}
		record.Relationships = kept
	}

	if _, err := r.persistLocked(ctx, fmt.Sprintf("Deleted agent %s", id)); err != nil {
		return err
	}

	if r.notifier != nil {
		r.notifier.Publish(ctx, notify.AgentDeleted{AgentID: id, Time: r.now().UTC()})
	}

	return nil
}

// GetAgent returns a copy of a record.
func (r *Registry) GetAgent(id string) (*fleet.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, fleet.ErrNotFound)
	}
	return record.Clone(), nil
}

// Exists reports whether the agent ID is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[id]
	return ok
}

// AgentIDs returns every registered agent ID, sorted.
func (r *Registry) AgentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListAgents returns copies of all records, sorted by ID.
func (r *Registry) ListAgents() []*fleet.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []*fleet.AgentRecord {
	out := make([]*fleet.AgentRecord, 0, len(r.agents))
	for _, record := range r.agents {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindAgentsByCapability returns agents whose capabilities or system prompt
// contain the query, case-insensitively.
func (r *Registry) FindAgentsByCapability(query string) []*fleet.AgentRecord {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*fleet.AgentRecord
	for _, record := range r.agents {
		if agentMatches(record, needle) {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func agentMatches(record *fleet.AgentRecord, needle string) bool {
	for _, cap := range record.Capabilities {
		if strings.Contains(strings.ToLower(cap), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(record.SystemPrompt), needle)
}

// AddRelationship appends a directed edge from agentID. Both ends must
// exist.
func (r *Registry) AddRelationship(ctx context.Context, agentID string, rel fleet.Relationship) error {
	if err := rel.Type.Validate(); err != nil {
		return &fleet.ValidationError{Field: "type", Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, fleet.ErrNotFound)
	}
	if _, ok := r.agents[rel.TargetAgentID]; !ok {
		return fmt.Errorf("target agent %s: %w", rel.TargetAgentID, fleet.ErrNotFound)
	}

	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = r.now().UTC()
	}
	record.Relationships = append(record.Relationships, rel)
	record.LastModified = r.now().UTC()

	_, err := r.persistLocked(ctx, fmt.Sprintf("Added %s relationship %s -> %s", rel.Type, agentID, rel.TargetAgentID))
	return err
}

// GetRelationships returns the edges owned by an agent.
func (r *Registry) GetRelationships(agentID string) ([]fleet.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, fleet.ErrNotFound)
	}
	return append([]fleet.Relationship(nil), record.Relationships...), nil
}

// Stats summarizes registry state.
type Stats struct {
	TotalAgents   int
	ByStatus      map[fleet.AgentStatus]int
	SnapshotBytes int
	LastModified  time.Time
}

// GetStats computes counts by status, the persisted snapshot size, and the
// most recent record modification time.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		TotalAgents:   len(r.agents),
		ByStatus:      make(map[fleet.AgentStatus]int),
		SnapshotBytes: r.snapshotBytes,
	}
	for _, record := range r.agents {
		stats.ByStatus[record.Status]++
		if record.LastModified.After(stats.LastModified) {
			stats.LastModified = record.LastModified
		}
	}
	return stats
}

// GetCommitHistory returns up to limit commits, newest first.
func (r *Registry) GetCommitHistory(ctx context.Context, limit int) ([]fleet.Commit, error) {
	return r.store.Log(ctx, limit)
}

// Rollback restores the registry to the snapshot at the given commit hash
// and commits the restored state, preserving the strict total order of
// commits. Reconciliation of live agent processes is a separate, explicit
// follow-up step (see internal/reconcile).
func (r *Registry) Rollback(ctx context.Context, hash string) error {
	snap, err := r.store.Checkout(ctx, hash)
	if err != nil {
		return err
	}
	agents, err := decodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("commit %s has unreadable snapshot: %w", hash, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents = agents
	if _, err := r.persistLocked(ctx, fmt.Sprintf("Rollback to %s", hash)); err != nil {
		return err
	}

	log.Printf("[Registry] Rolled back to commit %.8s (%d agents)", hash, len(agents))
	if r.notifier != nil {
		r.notifier.Publish(ctx, notify.Rollback{Hash: hash, Time: r.now().UTC()})
	}
	return nil
}

// RollbackToTime resolves the newest commit at or before now-hoursAgo and
// rolls back to it. Returns the resolved hash.
func (r *Registry) RollbackToTime(ctx context.Context, hoursAgo float64) (string, error) {
	if hoursAgo <= 0 {
		return "", &fleet.ValidationError{Field: "hours_ago", Reason: "must be positive"}
	}

	cutoff := r.now().UTC().Add(-time.Duration(hoursAgo * float64(time.Hour)))

	commits, err := r.store.Log(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("failed to read commit history: %w", err)
	}

	// Log is newest first; the first commit at or before the cutoff is the
	// nearest one.
	for _, commit := range commits {
		if !commit.Timestamp.After(cutoff) {
			return commit.Hash, r.Rollback(ctx, commit.Hash)
		}
	}

	return "", fmt.Errorf("no commit at or before %s: %w", cutoff.Format(time.RFC3339), fleet.ErrNotFound)
}

// ActiveAgents returns copies of all records with status=active. The
// reconciler uses this as the desired running set.
func (r *Registry) ActiveAgents() []*fleet.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*fleet.AgentRecord
	for _, record := range r.agents {
		if record.Status == fleet.AgentStatusActive {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persistLocked serializes the full map and commits it. Callers must hold
// r.mu. The in-memory state is intentionally not rolled back on a commit
// failure; the error carries the staleness to the caller.
func (r *Registry) persistLocked(ctx context.Context, message string) (string, error) {
	snap, err := encodeSnapshot(r.agents)
	if err != nil {
		return "", err
	}

	hash, err := r.store.Commit(ctx, snap, message)
	if err != nil {
		return "", fmt.Errorf("state updated but commit failed: %w", err)
	}

	r.snapshotBytes = len(snap)
	return hash, nil
}
