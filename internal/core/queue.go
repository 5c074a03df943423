package core

import (
	"context"
	"sync"
)

// Queue is the bounded FIFO between producers and the sender pump.
// Any number of goroutines may enqueue; exactly one goroutine consumes Out.
type Queue struct {
	ch     chan Frame
	policy Policy

	// Producers hold mu shared for the whole enqueue; Close takes it
	// exclusively so no frame lands in ch after Done is closed.
	mu      sync.RWMutex
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewQueue(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:      make(chan Frame, capacity),
		policy:  policy,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Enqueue adds f according to the queue policy. Under Block it waits for a
// free slot, ctx cancellation, or Close.
func (q *Queue) Enqueue(ctx context.Context, f Frame) error {
	if q.policy == FailFast {
		return q.TryEnqueue(f)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- f:
		return nil
	case <-q.closing:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue never blocks, whatever the policy.
func (q *Queue) TryEnqueue(f Frame) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close shuts the producer side. Blocked producers return ErrQueueClosed,
// then Done is closed. Every Enqueue that returned nil put its frame in Out
// before Done closed; frames already queued stay readable from Out.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.closing)
		q.mu.Lock()
		close(q.done)
		q.mu.Unlock()
	})
}

// Out is the consumer end. It is never closed; select on Done as well.
func (q *Queue) Out() <-chan Frame { return q.ch }

func (q *Queue) Done() <-chan struct{} { return q.done }

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.closing:
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }

func (q *Queue) Policy() Policy { return q.policy }
