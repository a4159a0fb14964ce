// Package notify delivers state changes to subscribers in the order they
// were published.
//
// Ownership boundary:
// - subscriber registration
//
// - serialized, ordered delivery
//
// Owners publish while holding the lock that ordered the change, then call
// Flush after releasing it. One goroutine delivers at a time; a Flush that
// finds delivery in progress returns and leaves the queue to that goroutine.
package notify

import (
	"sort"
	"sync"
)

// Listener receives one published value. It runs outside every owner lock.
type Listener[T any] func(T)

type entry[T any] struct {
	value T
	after func()
}

// Queue fans published values out to listeners one at a time.
type Queue[T any] struct {
	mu         sync.Mutex
	listeners  map[uint64]Listener[T]
	nextSub    uint64
	pending    []entry[T]
	delivering bool
}

// Subscribe registers fn and returns its cancel func.
func (q *Queue[T]) Subscribe(fn Listener[T]) func() {
	q.mu.Lock()
	if q.listeners == nil {
		q.listeners = make(map[uint64]Listener[T])
	}
	id := q.nextSub
	q.nextSub++
	q.listeners[id] = fn
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.listeners, id)
			q.mu.Unlock()
		})
	}
}

// Publish queues value. after, when set, runs once every listener has
// received value.
func (q *Queue[T]) Publish(value T, after func()) {
	q.mu.Lock()
	q.pending = append(q.pending, entry[T]{value: value, after: after})
	q.mu.Unlock()
}

// Flush delivers queued values until the queue is empty.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = entry[T]{}
		q.pending = q.pending[1:]
		fns := q.snapshotLocked()
		q.mu.Unlock()

		for _, fn := range fns {
			fn(next.value)
		}
		if next.after != nil {
			next.after()
		}

		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}

func (q *Queue[T]) snapshotLocked() []Listener[T] {
	ids := make([]uint64, 0, len(q.listeners))
	for id := range q.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener[T], 0, len(ids))
	for _, id := range ids {
		fns = append(fns, q.listeners[id])
	}
	return fns
}
