// Package history provides the append-only, content-addressable version
// store behind the agent registry. Every registry mutation commits the full
// snapshot; any prior snapshot can be checked out again by hash.
package history

import (
	"context"

	"github.com/warrenhq/warren/pkg/fleet"
)

// Store is the version-control primitive the registry commits to. Any
// append-only, content-addressable history satisfies it. Implementations:
// GitStore (a real git repository driven through the git CLI) and MemStore
// (in-memory, for tests).
type Store interface {
	// Commit records the snapshot with the given message and returns the
	// new commit hash.
	Commit(ctx context.Context, snapshot []byte, message string) (string, error)

	// Checkout returns the snapshot stored at the given commit hash.
	// Returns fleet.ErrNotFound (wrapped) for an unknown hash.
	Checkout(ctx context.Context, hash string) ([]byte, error)

	// Log returns up to limit commits, newest first. limit <= 0 means all.
	Log(ctx context.Context, limit int) ([]fleet.Commit, error)
}
