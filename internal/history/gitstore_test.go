package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warrenhq/warren/pkg/fleet"
)

func setupGitStore(t *testing.T) *GitStore {
	store, err := NewGitStore(t.TempDir(), "test", "test@example.com")
	require.NoError(t, err)
	return store
}

func TestGitStore_CommitAndCheckout(t *testing.T) {
	store := setupGitStore(t)
	ctx := context.Background()

	hash1, err := store.Commit(ctx, []byte("agents: {}\n"), "initial state")
	require.NoError(t, err)
	require.Len(t, hash1, 40)

	hash2, err := store.Commit(ctx, []byte("agents:\n  builder-1: {}\n"), "Created agent builder-1")
	require.NoError(t, err)
	require.NotEqual(t, hash1, hash2)

	// Both snapshots remain byte-reproducible.
	snap1, err := store.Checkout(ctx, hash1)
	require.NoError(t, err)
	assert.Equal(t, "agents: {}\n", string(snap1))

	snap2, err := store.Checkout(ctx, hash2)
	require.NoError(t, err)
	assert.Equal(t, "agents:\n  builder-1: {}\n", string(snap2))
}

func TestGitStore_CheckoutAbbreviatedHash(t *testing.T) {
	store := setupGitStore(t)
	ctx := context.Background()

	hash, err := store.Commit(ctx, []byte("snapshot\n"), "commit")
	require.NoError(t, err)

	snap, err := store.Checkout(ctx, hash[:8])
	require.NoError(t, err)
	assert.Equal(t, "snapshot\n", string(snap))
}

func TestGitStore_CheckoutUnknownHash(t *testing.T) {
	store := setupGitStore(t)
	ctx := context.Background()

	_, err := store.Commit(ctx, []byte("x"), "commit")
	require.NoError(t, err)

	_, err = store.Checkout(ctx, "0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, fleet.ErrNotFound)
}

func TestGitStore_Log(t *testing.T) {
	store := setupGitStore(t)
	ctx := context.Background()

	// Empty repository has no commits.
	commits, err := store.Log(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, commits)

	h1, err := store.Commit(ctx, []byte("a"), "first")
	require.NoError(t, err)
	h2, err := store.Commit(ctx, []byte("b"), "second")
	require.NoError(t, err)
	h3, err := store.Commit(ctx, []byte("c"), "third")
	require.NoError(t, err)

	// Newest first.
	commits, err = store.Log(ctx, 0)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, []string{h3, h2, h1}, []string{commits[0].Hash, commits[1].Hash, commits[2].Hash})
	assert.Equal(t, "third", commits[0].Message)
	assert.Equal(t, "test", commits[0].Author)
	assert.False(t, commits[0].Timestamp.IsZero())

	// Limit trims from the old end.
	commits, err = store.Log(ctx, 2)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, h3, commits[0].Hash)
	assert.Equal(t, h2, commits[1].Hash)
}

func TestGitStore_IdenticalSnapshotStillCommits(t *testing.T) {
	store := setupGitStore(t)
	ctx := context.Background()

	h1, err := store.Commit(ctx, []byte("same"), "first")
	require.NoError(t, err)
	h2, err := store.Commit(ctx, []byte("same"), "second")
	require.NoError(t, err)

	// One commit per mutation even when the snapshot did not change.
	assert.NotEqual(t, h1, h2)

	commits, err := store.Log(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}
