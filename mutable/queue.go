package mutable

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by TryPush when the real-time thread didn't
// consume previous mutations yet.
var ErrQueueFull = errors.New("mutation queue is full")

const defaultQueueSize = 64

// Queue transfers mutations from non-real-time threads to the real-time
// thread. Push may block, Drain never does.
type Queue struct {
	c chan Mutations
}

// NewQueue creates a queue that holds up to size pending batches.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{c: make(chan Mutations, size)}
}

// Push sends mutations as a single batch. It blocks until the batch is
// queued or context is done.
func (q *Queue) Push(ctx context.Context, mutations ...Mutation) error {
	ms := batch(mutations)
	if ms == nil {
		return nil
	}
	select {
	case q.c <- ms:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush sends mutations as a single batch without blocking.
func (q *Queue) TryPush(mutations ...Mutation) error {
	ms := batch(mutations)
	if ms == nil {
		return nil
	}
	select {
	case q.c <- ms:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain applies all queued batches and returns number of applied
// mutations. It's called by the real-time thread at the cycle start.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case ms := <-q.c:
			n += ms.Apply()
		default:
			return n
		}
	}
}

// Len returns number of pending batches.
func (q *Queue) Len() int {
	return len(q.c)
}

func batch(mutations []Mutation) Mutations {
	var ms Mutations
	for _, m := range mutations {
		ms = ms.Put(m)
	}
	return ms
}
