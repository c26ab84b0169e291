package broker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenhq/warren/pkg/fleet"
)

func queuedMessage(id string, priority fleet.Priority) *fleet.AgentMessage {
	return &fleet.AgentMessage{ID: id, Priority: priority}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := newQueue(10)

	require.NoError(t, q.Push(queuedMessage("low", fleet.PriorityLow)))
	require.NoError(t, q.Push(queuedMessage("critical", fleet.PriorityCritical)))
	require.NoError(t, q.Push(queuedMessage("medium", fleet.PriorityMedium)))

	assert.Equal(t, "critical", q.Pop().ID)
	assert.Equal(t, "medium", q.Pop().ID)
	assert.Equal(t, "low", q.Pop().ID)
	assert.Nil(t, q.Pop())
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := newQueue(10)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(queuedMessage(fmt.Sprintf("m%d", i), fleet.PriorityHigh)))
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), q.Pop().ID)
	}
}

func TestQueueCapacity(t *testing.T) {
	q := newQueue(2)

	require.NoError(t, q.Push(queuedMessage("a", fleet.PriorityLow)))
	require.NoError(t, q.Push(queuedMessage("b", fleet.PriorityLow)))
	assert.ErrorIs(t, q.Push(queuedMessage("c", fleet.PriorityLow)), fleet.ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	// Popping frees capacity.
	q.Pop()
	assert.NoError(t, q.Push(queuedMessage("c", fleet.PriorityLow)))
}
