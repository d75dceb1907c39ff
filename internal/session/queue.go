package session

import (
	"sync"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
)

// Queue is the bounded buffer between the audio callback thread and the
// consumer. Push never blocks: when full, the oldest entry is evicted. At
// most one unconsumed partial result lives in the queue at a time; a new
// partial replaces it. Finals are only ever lost to the eviction policy.
type Queue struct {
	mu       sync.Mutex
	items    []protocol.Result
	capacity int
	dropped  uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{capacity: capacity}
}

// Push enqueues a result, coalescing partials and evicting the oldest
// entry on overflow.
func (q *Queue) Push(r protocol.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !r.Final {
		for i, item := range q.items {
			if !item.Final {
				q.items = append(q.items[:i], q.items[i+1:]...)
				break
			}
		}
	}

	if len(q.items) >= q.capacity {
		evict := len(q.items) - q.capacity + 1
		q.items = q.items[evict:]
		q.dropped += uint64(evict)
	}
	q.items = append(q.items, r)
}

// DrainAll atomically takes and clears the queue contents, in insertion
// order.
func (q *Queue) DrainAll() []protocol.Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many results the eviction policy has discarded.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
