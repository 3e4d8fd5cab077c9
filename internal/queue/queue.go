package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueClosed indicates the queue no longer accepts or hands out jobs.
	ErrQueueClosed = errors.New("job queue closed")
)

// Job is a unit of background work. A job may declare dependencies on other
// jobs by id: it becomes runnable only once every dependency has finished
// successfully. If any dependency fails the job is discarded, never run.
type Job struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Payload   []byte   `json:"payload"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Queue hands jobs to background workers. Delivery is at-most-once: a job
// handed to a worker that dies before MarkDone is not redelivered.
type Queue interface {
	// Enqueue schedules a job. Jobs with unmet dependencies are held back
	// until MarkDone reports success for each dependency.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a runnable job is available, the context is
	// canceled, or the queue is closed.
	Dequeue(ctx context.Context) (Job, error)
	// MarkDone records the outcome of a finished job and releases or
	// discards any jobs depending on it.
	MarkDone(ctx context.Context, jobID string, succeeded bool) error
	// Close stops the queue. Blocked Dequeue calls return ErrQueueClosed.
	Close() error
}
