package fifoqueue

import (
	"sync"

	"github.com/gammazero/deque"
)

// FIFOQueue is unbounded synchronized FIFO queue with one or many consumers
type FIFOQueue[T any] struct {
	mutex   sync.Mutex
	cond    *sync.Cond
	d       deque.Deque[T]
	closing bool
}

func New[T any]() *FIFOQueue[T] {
	ret := &FIFOQueue[T]{}
	ret.cond = sync.NewCond(&ret.mutex)
	return ret
}

// Write pushes element. Panics if the queue is closed
func (q *FIFOQueue[T]) Write(elem T) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closing {
		panic("attempt to write to the closed FIFOQueue")
	}
	q.d.PushBack(elem)
	q.cond.Signal()
}

// Close closes the queue. Consumers read remaining elements before they stop
func (q *FIFOQueue[T]) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closing = true
	q.cond.Broadcast()
}

// CloseNow closes the queue immediately. Elements in the buffer are not delivered
func (q *FIFOQueue[T]) CloseNow() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closing = true
	for q.d.Len() > 0 {
		q.d.PopFront()
	}
	q.cond.Broadcast()
}

// read blocks until an element is available. Returns false if the queue is closed and empty
func (q *FIFOQueue[T]) read() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for q.d.Len() == 0 && !q.closing {
		q.cond.Wait()
	}
	if q.d.Len() == 0 {
		var nilT T
		return nilT, false
	}
	return q.d.PopFront(), true
}

// Consume reads all elements of the queue until it is closed
func (q *FIFOQueue[T]) Consume(fun func(elem T)) {
	for {
		e, ok := q.read()
		if !ok {
			break
		}
		fun(e)
	}
}

// Len returns number of elements in the queue. Non-deterministic
func (q *FIFOQueue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.d.Len()
}
