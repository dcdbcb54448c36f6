package event

import "sync"

// Queue is an ordered multi-producer single-consumer queue with no capacity
// bound. Producers never block, so an actor can never deadlock its own
// feeders. The consumer either blocks in Pop or selects on Ready and drains
// with TryPop.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
	ready  chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		ready: make(chan struct{}, 1),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an item. It reports false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	q.mu.Unlock()

	q.signalReady()
	return true
}

// Pop blocks until an item is available or the queue is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q == nil {
		return zero, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// TryPop removes the next queued item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	if q == nil {
		return zero, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Ready is signaled whenever items may be available or the queue closes.
// Wakes can be spurious; consumers must tolerate an empty TryPop.
func (q *Queue[T]) Ready() <-chan struct{} {
	if q == nil {
		return nil
	}
	return q.ready
}

// Kick re-arms Ready if items remain, for consumers taking one item per
// loop iteration.
func (q *Queue[T]) Kick() {
	if q == nil {
		return
	}
	q.mu.Lock()
	pending := len(q.items) > 0 || q.closed
	q.mu.Unlock()
	if pending {
		q.signalReady()
	}
}

func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new items. Items already queued stay poppable.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.signalReady()
}

func (q *Queue[T]) Closed() bool {
	if q == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) signalReady() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
