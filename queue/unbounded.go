package queue

import "sync"

// Unbounded is a channel-shaped FIFO that never applies backpressure to its
// producers. Values pushed with Push come out of Out() in order. A pump
// goroutine buffers everything the consumer has not taken yet.
type Unbounded[T any] struct {
	in   chan T
	out  chan T
	done chan struct{}
	once sync.Once
}

// NewUnbounded starts the pump and returns the queue.
func NewUnbounded[T any]() *Unbounded[T] {
	u := &Unbounded[T]{
		in:   make(chan T),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	go u.pump()
	return u
}

func (u *Unbounded[T]) pump() {
	defer close(u.out)

	pending := New[T]()
	for {
		var out chan T
		next, ok := pending.Peek()
		if ok {
			out = u.out
		}

		select {
		case <-u.done:
			return
		case v := <-u.in:
			pending.Enqueue(v)
		case out <- next:
			pending.Dequeue()
		}
	}
}

// Push appends v. It returns false once the queue has been closed.
func (u *Unbounded[T]) Push(v T) bool {
	select {
	case <-u.done:
		return false
	default:
	}

	select {
	case u.in <- v:
		return true
	case <-u.done:
		return false
	}
}

// Out is the receive side. It is closed after Close.
func (u *Unbounded[T]) Out() <-chan T {
	return u.out
}

// Close stops the pump. Values still buffered are dropped.
func (u *Unbounded[T]) Close() {
	u.once.Do(func() { close(u.done) })
}
