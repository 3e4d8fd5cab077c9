package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Queue used for tests and single-node deployments
// without Redis. Held-back jobs and outcomes live only as long as the process.
type Memory struct {
	mu       sync.Mutex
	ready    []Job
	pending  map[string]*heldJob
	outcomes map[string]bool
	closed   bool

	wake     chan struct{}
	closedCh chan struct{}
}

type heldJob struct {
	job       Job
	remaining map[string]struct{}
}

// NewMemory constructs an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		pending:  make(map[string]*heldJob),
		outcomes: make(map[string]bool),
		wake:     make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Enqueue schedules the job, holding it back while dependencies are unmet.
func (q *Memory) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	remaining := make(map[string]struct{})
	for _, dep := range job.DependsOn {
		succeeded, done := q.outcomes[dep]
		if done && !succeeded {
			// A dependency already failed; the job will never run.
			return nil
		}
		if !done {
			remaining[dep] = struct{}{}
		}
	}

	if len(remaining) > 0 {
		q.pending[job.ID] = &heldJob{job: job, remaining: remaining}
		return nil
	}

	q.ready = append(q.ready, job)
	q.signalLocked()
	return nil
}

// Dequeue pops the next runnable job, blocking until one appears.
func (q *Memory) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			if len(q.ready) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()
			return job, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Job{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.closedCh:
			return Job{}, ErrQueueClosed
		case <-q.wake:
		}
	}
}

// MarkDone records a job outcome and releases or discards dependents.
func (q *Memory) MarkDone(_ context.Context, jobID string, succeeded bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.outcomes[jobID] = succeeded

	for id, held := range q.pending {
		if _, waits := held.remaining[jobID]; !waits {
			continue
		}
		if !succeeded {
			delete(q.pending, id)
			continue
		}
		delete(held.remaining, jobID)
		if len(held.remaining) == 0 {
			delete(q.pending, id)
			q.ready = append(q.ready, held.job)
			q.signalLocked()
		}
	}

	return nil
}

// Close shuts the queue down.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.closedCh)
	return nil
}

// Held reports whether a job is currently waiting on dependencies. Useful for tests.
func (q *Memory) Held(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[jobID]
	return ok
}

func (q *Memory) signalLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

var _ Queue = (*Memory)(nil)
