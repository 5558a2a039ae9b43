package fibre

import "sync"

// queueNode is one link in a runQueue. A node is owned by exactly one
// queue for its lifetime (spec.md §3, C4: "No node is ever shared between
// two queues"); queueNodePool recycles them across queues rather than across
// coroutines, since a coroutine's identity is the *Coroutine it wraps, not
// the node.
type queueNode struct {
	co   *Coroutine
	next *queueNode
}

var queueNodePool = sync.Pool{New: func() any { return new(queueNode) }}

// runQueue is a singly-linked FIFO of coroutine handles (spec.md §3, C4).
// It is mutex-guarded rather than lock-free: the teacher's own lock-free
// list (list.go) trades this simplicity for wait-freedom it does not need
// here, since its callers (pickNext pruning Done nodes, the monitor's
// drain) inspect Coroutine.state under the same critical section as the
// link-list splice — a single mutex makes that atomic without a second
// synchronization mechanism.
type runQueue struct {
	mu         sync.Mutex
	head, tail *queueNode
	size       int
}

// newRunQueue returns an empty queue, ready to use.
func newRunQueue() *runQueue { return &runQueue{} }

// append adds co to the tail. O(1).
func (q *runQueue) append(co *Coroutine) {
	q.mu.Lock()
	q.appendLocked(co)
	q.mu.Unlock()
}

func (q *runQueue) appendLocked(co *Coroutine) {
	n := queueNodePool.Get().(*queueNode)
	n.co, n.next = co, nil
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++
}

// popFront removes and returns the head coroutine, or nil if empty. O(1).
func (q *runQueue) popFront() *Coroutine {
	q.mu.Lock()
	co := q.popFrontLocked()
	q.mu.Unlock()
	return co
}

func (q *runQueue) popFrontLocked() *Coroutine {
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	co := n.co
	n.co, n.next = nil, nil
	queueNodePool.Put(n)
	return co
}

// rotate moves the current front to the tail. No-op on an empty or
// single-element queue (spec.md §4.3). O(1).
func (q *runQueue) rotate() {
	q.mu.Lock()
	q.rotateLocked()
	q.mu.Unlock()
}

func (q *runQueue) rotateLocked() {
	if q.head == nil || q.head == q.tail {
		return
	}
	n := q.head
	q.head = n.next
	n.next = nil
	q.tail.next = n
	q.tail = n
}

// frontLocked returns the head coroutine without removing it, or nil if
// empty. Caller must hold q.mu.
func (q *runQueue) frontLocked() *Coroutine {
	if q.head == nil {
		return nil
	}
	return q.head.co
}

// Len returns the current queue size.
func (q *runQueue) Len() int {
	q.mu.Lock()
	n := q.size
	q.mu.Unlock()
	return n
}
