package history

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warrenhq/warren/pkg/fleet"
)

// MemStore is an in-memory Store for tests. Hashes are content-addressed
// (SHA-1 over the snapshot plus a sequence number, mirroring git's
// uniqueness guarantee without the subprocess).
type MemStore struct {
	mu        sync.Mutex
	commits   []fleet.Commit // oldest first
	snapshots map[string][]byte
	author    string

	// Now is swappable so tests can control commit timestamps.
	Now func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(author string) *MemStore {
	if author == "" {
		author = "warren"
	}
	return &MemStore{
		snapshots: make(map[string][]byte),
		author:    author,
		Now:       time.Now,
	}
}

// Commit records the snapshot and returns its hash.
func (s *MemStore) Commit(_ context.Context, snapshot []byte, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha1.Sum(append([]byte(fmt.Sprintf("%d:", len(s.commits))), snapshot...))
	hash := hex.EncodeToString(sum[:])

	s.commits = append(s.commits, fleet.Commit{
		Hash:      hash,
		Message:   message,
		Author:    s.author,
		Timestamp: s.Now().UTC(),
	})
	s.snapshots[hash] = append([]byte(nil), snapshot...)

	return hash, nil
}

// Checkout returns the snapshot for a hash or unique hash prefix.
func (s *MemStore) Checkout(_ context.Context, hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.snapshots[hash]; ok {
		return append([]byte(nil), snap...), nil
	}

	// Accept unique abbreviations, matching git's behaviour.
	var match string
	for h := range s.snapshots {
		if strings.HasPrefix(h, hash) {
			if match != "" {
				return nil, fmt.Errorf("ambiguous commit %s: %w", hash, fleet.ErrNotFound)
			}
			match = h
		}
	}
	if match == "" {
		return nil, fmt.Errorf("commit %s: %w", hash, fleet.ErrNotFound)
	}

	return append([]byte(nil), s.snapshots[match]...), nil
}

// Log returns commits newest first.
func (s *MemStore) Log(_ context.Context, limit int) ([]fleet.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]fleet.Commit, 0, len(s.commits))
	for i := len(s.commits) - 1; i >= 0; i-- {
		out = append(out, s.commits[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
