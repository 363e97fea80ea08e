// Package queue is the hand-off between the event producers and the
// single display consumer.
//
// Entries come out lowest Priority first and, within a priority, in the
// order they were enqueued. The queue is unbounded.
package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/nerrad567/tickerbox/internal/event"
)

// Queue is a thread-safe stable priority queue of display events.
type Queue struct {
	mu    sync.Mutex
	items entries
	seq   uint64

	// notify holds at most one wake-up token.
	notify chan struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue adds ev. It never blocks.
func (q *Queue) Enqueue(ev event.DisplayEvent) {
	q.mu.Lock()
	heap.Push(&q.items, entry{ev: ev, seq: q.seq})
	q.seq++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the next event, blocking while the queue is
// empty. It returns ctx.Err() only if ctx ends before an event arrives.
func (q *Queue) Dequeue(ctx context.Context) (event.DisplayEvent, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			e := heap.Pop(&q.items).(entry) //nolint:errcheck // entries only holds entry
			more := q.items.Len() > 0
			q.mu.Unlock()
			if more {
				// Pass the wake-up on in case another consumer is parked.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return e.ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return event.DisplayEvent{}, ctx.Err()
		}
	}
}

// Len returns a snapshot of the number of queued events. It may be stale
// by the time the caller reads it.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type entry struct {
	ev  event.DisplayEvent
	seq uint64
}

// entries implements heap.Interface ordered by (priority, seq).
type entries []entry

func (e entries) Len() int { return len(e) }

func (e entries) Less(i, j int) bool {
	if e[i].ev.Priority != e[j].ev.Priority {
		return e[i].ev.Priority < e[j].ev.Priority
	}
	return e[i].seq < e[j].seq
}

func (e entries) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries) Push(x any) { *e = append(*e, x.(entry)) } //nolint:errcheck // heap contract

func (e *entries) Pop() any {
	old := *e
	n := len(old)
	item := old[n-1]
	old[n-1] = entry{}
	*e = old[:n-1]
	return item
}
