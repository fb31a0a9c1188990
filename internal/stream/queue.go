package stream

import "sync"

// Queue is an unbounded in-memory FIFO of encoded chunk bytes between
// the flow (producer) and the response writer (consumer). Delivery is
// strictly in push order and nothing is dropped: after Done the
// consumer still receives every element pushed before the signal.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items [][]byte
	done  bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends b to the queue. Pushing after Done is a no-op; the
// producer signals completion exactly once, after its last push.
func (q *Queue) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.items = append(q.items, b)
	q.cond.Signal()
}

// Done marks the producer finished. The consumer drains the remaining
// elements and then observes ok=false.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = true
	q.cond.Broadcast()
}

// Next blocks until an element is available or the queue is finished.
// It returns ok=false only once the producer is done and the queue has
// been fully drained.
func (q *Queue) Next() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.done {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}
