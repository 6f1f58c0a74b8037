// Package ringchan provides a bounded channel that never blocks its producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded to make room. Consumers read from C() like a normal channel.
//
//	r := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    r.Send(i)
//	}
//	r.Close()
//	for v := range r.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
//
// A Ring supports any number of consumers but expects its producers to be
// serialized by the caller.
type Ring[T any] struct {
	ch        chan T
	closeOnce sync.Once

	written     atomic.Int64
	overwritten atomic.Int64
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// Reports whether an element was dropped. Send panics after Close.
func (r *Ring[T]) Send(v T) bool {
	dropped := false

	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
			r.overwritten.Add(1)
			dropped = true
		default:
		}
		r.ch <- v
	}
	r.written.Add(1)

	return dropped
}

// Close closes the receive side. Safe to call more than once.
func (r *Ring[T]) Close() {
	r.closeOnce.Do(func() { close(r.ch) })
}

// Stats returns how many values were written and how many were overwritten
// before a consumer got to them.
func (r *Ring[T]) Stats() (written, overwritten int64) {
	return r.written.Load(), r.overwritten.Load()
}
