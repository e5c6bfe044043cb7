package settlement

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Dequeue once a closed queue has drained.
var ErrQueueClosed = errors.New("settlement: queue closed")

// Ack marks a dequeued task as durably handled. Broker-backed drivers advance
// their consumer offset here; until Ack runs, a crashed worker's task is
// redelivered. The executor calls it only after the task's outcome is
// persisted.
type Ack func() error

// Queue decouples admission from execution. Enqueue acknowledges quickly and
// each task is delivered to exactly one executor invocation, at least once.
// No ordering is guaranteed across tasks; per-entity correctness is enforced
// by the executor, not the queue.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, Ack, error)
	Close() error
}

// MemoryQueue is the channel-backed in-process Queue. Enqueue blocks only
// while the buffer is full.
type MemoryQueue struct {
	tasks chan Task
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{tasks: make(chan Task, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue hands out a buffered task. The channel is the only copy, so
// delivery itself is the durable handoff and the returned Ack is a no-op.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, Ack, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return Task{}, nil, ErrQueueClosed
		}
		return task, noopAck, nil
	case <-ctx.Done():
		return Task{}, nil, ctx.Err()
	}
}

func noopAck() error { return nil }

// Close stops delivery once the buffer drains. Enqueue must not be called
// after Close.
func (q *MemoryQueue) Close() error {
	close(q.tasks)
	return nil
}

// Len reports the number of tasks waiting for an executor.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
