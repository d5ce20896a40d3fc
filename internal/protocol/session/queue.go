package session

import (
	"context"
	"sync"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// frameQueue is an unbounded FIFO with one producer (the read loop) and one
// consumer (the connection owner). Close is idempotent; after it, Next keeps
// returning buffered frames and then ErrQueueExhausted.
type frameQueue struct {
	mu     sync.Mutex
	items  []frame.Frame
	closed bool
	signal chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{signal: make(chan struct{}, 1)}
}

// Push appends f. It reports false once the queue is closed.
func (q *frameQueue) Push(f frame.Frame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.notify()
	return true
}

func (q *frameQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *frameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Next blocks until a frame is available, the queue is exhausted, or ctx ends.
func (q *frameQueue) Next(ctx context.Context) (frame.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = frame.Frame{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, nil
		}
		if q.closed {
			q.mu.Unlock()
			// Keep the signal armed for any later caller.
			q.notify()
			return frame.Frame{}, ErrQueueExhausted
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *frameQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
