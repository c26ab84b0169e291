package broker

import (
	"container/heap"

	"github.com/warrenhq/warren/pkg/fleet"
)

// queue is a bounded priority queue of pending messages. Higher priority
// dequeues first; within a priority band messages keep arrival order via a
// monotonic sequence number.
type queue struct {
	items messageHeap
	max   int
	seq   uint64
}

type queueItem struct {
	msg *fleet.AgentMessage
	seq uint64
}

func newQueue(max int) *queue {
	return &queue{max: max}
}

// Push enqueues a message, failing with fleet.ErrQueueFull at capacity.
func (q *queue) Push(msg *fleet.AgentMessage) error {
	if q.max > 0 && q.items.Len() >= q.max {
		return fleet.ErrQueueFull
	}
	q.seq++
	heap.Push(&q.items, queueItem{msg: msg, seq: q.seq})
	return nil
}

// Pop dequeues the highest-priority message, nil when empty.
func (q *queue) Pop() *fleet.AgentMessage {
	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(queueItem)
	return item.msg
}

// Len reports the queue depth.
func (q *queue) Len() int {
	return q.items.Len()
}

type messageHeap []queueItem

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	ri, rj := h[i].msg.Priority.Rank(), h[j].msg.Priority.Rank()
	if ri != rj {
		return ri > rj
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
