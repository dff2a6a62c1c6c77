package music

import (
	"fmt"
	"sync"
	"time"
)

type OverflowPolicy int

const (
	OverflowReject OverflowPolicy = iota
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	if p == OverflowDropOldest {
		return "drop-oldest"
	}
	return "reject"
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "reject", "":
		return OverflowReject, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	}
	return OverflowReject, fmt.Errorf("%w: unknown overflow policy %q", ErrInvalidConfig, s)
}

const QUEUE_PREALLOCATION = 64

// Queue buffers actions between the input producers and the scheduler tick.
// A limit of 0 means unbounded.
type Queue struct {
	mu     sync.Mutex
	items  []Action
	limit  int
	policy OverflowPolicy
	seq    uint64
	now    func() time.Time
}

func NewQueue(limit int, policy OverflowPolicy) *Queue {
	return &Queue{
		items:  make([]Action, 0, QUEUE_PREALLOCATION),
		limit:  limit,
		policy: policy,
		now:    time.Now,
	}
}

// Enqueue stamps the action and appends it. When the queue is full the
// overflow policy decides which action is lost, and the loss is reported.
func (q *Queue) Enqueue(a Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	a.Seq = q.seq
	a.At = q.now()

	if q.limit > 0 && len(q.items) >= q.limit {
		if q.policy == OverflowReject {
			return fmt.Errorf("%w: rejected %s", ErrQueueOverflow, a)
		}
		oldest := q.items[0]
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = a
		return fmt.Errorf("%w: dropped %s", ErrQueueOverflow, oldest)
	}
	q.items = append(q.items, a)
	return nil
}

// Drain returns every queued action in arrival order and empties the queue.
func (q *Queue) Drain() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]Action, 0, max(cap(out), QUEUE_PREALLOCATION))
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
