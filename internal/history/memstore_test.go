package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warrenhq/warren/pkg/fleet"
)

func TestMemStore_RoundTrip(t *testing.T) {
	store := NewMemStore("test")
	ctx := context.Background()

	h1, err := store.Commit(ctx, []byte("one"), "first")
	require.NoError(t, err)
	h2, err := store.Commit(ctx, []byte("two"), "second")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	snap, err := store.Checkout(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(snap))

	// Unique prefixes resolve.
	snap, err = store.Checkout(ctx, h2[:10])
	require.NoError(t, err)
	assert.Equal(t, "two", string(snap))

	_, err = store.Checkout(ctx, "deadbeef")
	assert.ErrorIs(t, err, fleet.ErrNotFound)
}

func TestMemStore_LogNewestFirst(t *testing.T) {
	store := NewMemStore("test")
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	ctx := context.Background()

	var hashes []string
	for _, msg := range []string{"a", "b", "c"} {
		h, err := store.Commit(ctx, []byte(msg), msg)
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	commits, err := store.Log(ctx, 0)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, hashes[2], commits[0].Hash)
	assert.Equal(t, hashes[0], commits[2].Hash)
	assert.True(t, commits[0].Timestamp.After(commits[2].Timestamp))

	limited, err := store.Log(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, hashes[2], limited[0].Hash)
}
