package workqueue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO shared by any number of producers and
// consumers. Put never blocks.
type Queue struct {
	name string

	mu      sync.Mutex
	items   []Message
	waiting chan struct{}
}

// New returns an empty queue.
func New(name string) *Queue {
	return &Queue{name: name, waiting: make(chan struct{})}
}

// Name identifies the queue in logs.
func (q *Queue) Name() string {
	return q.name
}

// Put appends msg and wakes blocked consumers.
func (q *Queue) Put(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	close(q.waiting)
	q.waiting = make(chan struct{})
	q.mu.Unlock()
}

// TryGet pops the oldest message without blocking.
func (q *Queue) TryGet() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Get blocks until a message is available or ctx ends.
func (q *Queue) Get(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		msg, ok := q.popLocked()
		wake := q.waiting
		q.mu.Unlock()
		if ok {
			return msg, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) popLocked() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg, true
}
