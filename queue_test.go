package fibre

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestCoroutine(state State) *Coroutine {
	co := &Coroutine{location: "test"}
	co.setState(state)
	return co
}

func TestRunQueueAppendPopFront_FIFOOrder(t *testing.T) {
	q := newRunQueue()
	a := newTestCoroutine(StateRunnable)
	b := newTestCoroutine(StateRunnable)
	c := newTestCoroutine(StateRunnable)

	q.append(a)
	q.append(b)
	q.append(c)
	assert.Equal(t, 3, q.Len())

	assert.Same(t, a, q.popFront())
	assert.Same(t, b, q.popFront())
	assert.Same(t, c, q.popFront())
	assert.Nil(t, q.popFront())
	assert.Equal(t, 0, q.Len())
}

func TestRunQueuePopFront_Empty(t *testing.T) {
	q := newRunQueue()
	assert.Nil(t, q.popFront())
}

func TestRunQueueRotate_EmptyAndSingleAreNoops(t *testing.T) {
	q := newRunQueue()
	q.rotate() // must not panic on empty

	a := newTestCoroutine(StateRunnable)
	q.append(a)
	q.rotate()
	assert.Same(t, a, q.frontLocked())
}

func TestRunQueueRotate_MovesHeadToTail(t *testing.T) {
	q := newRunQueue()
	a := newTestCoroutine(StateRunnable)
	b := newTestCoroutine(StateRunnable)
	q.append(a)
	q.append(b)

	q.rotate()
	assert.Same(t, b, q.popFront())
	assert.Same(t, a, q.popFront())
}

func TestRunQueueFrontLocked_DoesNotRemove(t *testing.T) {
	q := newRunQueue()
	a := newTestCoroutine(StateRunnable)
	q.append(a)

	q.mu.Lock()
	front := q.frontLocked()
	q.mu.Unlock()

	assert.Same(t, a, front)
	assert.Equal(t, 1, q.Len())
}
