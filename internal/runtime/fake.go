package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warrenhq/warren/pkg/fleet"
)

// Fake is an in-memory Runtime for tests and for running Warren without a
// container daemon. Failure injection maps let tests exercise partial
// reconciliation outcomes.
type Fake struct {
	mu      sync.Mutex
	running map[string]bool

	SpawnErrors map[string]error // agentID -> error returned by Spawn
	KillErrors  map[string]error // agentID -> error returned by Kill

	SpawnCalls []string
	KillCalls  []string
}

// NewFake creates an empty fake runtime.
func NewFake() *Fake {
	return &Fake{
		running:     make(map[string]bool),
		SpawnErrors: make(map[string]error),
		KillErrors:  make(map[string]error),
	}
}

// Spawn marks the agent running.
func (f *Fake) Spawn(_ context.Context, record *fleet.AgentRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SpawnCalls = append(f.SpawnCalls, record.ID)
	if err := f.SpawnErrors[record.ID]; err != nil {
		return "", err
	}
	f.running[record.ID] = true
	return "fake-" + record.ID, nil
}

// Kill marks the agent stopped.
func (f *Fake) Kill(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.KillCalls = append(f.KillCalls, agentID)
	if err := f.KillErrors[agentID]; err != nil {
		return err
	}
	if !f.running[agentID] {
		return fmt.Errorf("no container for agent '%s'", agentID)
	}
	delete(f.running, agentID)
	return nil
}

// Status reports the fake process state.
func (f *Fake) Status(_ context.Context, agentID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running[agentID] {
		return StatusRunning, nil
	}
	return StatusNotFound, nil
}

// Running lists running agent IDs, sorted for deterministic assertions.
func (f *Fake) Running(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for id := range f.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetRunning seeds the running set directly.
func (f *Fake) SetRunning(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.running[id] = true
	}
}
