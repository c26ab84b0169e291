package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Rollback failed", "The commit does not exist", []string{})
		require.Error(t, err)
		require.Equal(t, "Rollback failed", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Rollback failed", "The commit does not exist", []string{"Run 'warren history' to list commits"})
		require.Error(t, err)
		require.Equal(t, "Rollback failed", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Redis not reachable", "The broker needs Redis for message history", []string{
			"Start Redis locally on port 6379",
			"Point redis.url in warren.yml at a running server",
		})
		require.Error(t, err)
		require.Equal(t, "Redis not reachable", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	err := ErrorWithContext("Agent not found", "No agent with that ID is registered", map[string]string{
		"Agent":    "builder-9",
		"Instance": "warren-1",
	}, []string{"Run 'warren agent list' to see registered agents"})
	require.Error(t, err)
	require.Equal(t, "Agent not found", err.Error())
}
