package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryEnqueueDequeue(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, Job{ID: "a", Kind: "transcode"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != "a" {
		t.Fatalf("expected job a, got %q", job.ID)
	}
}

func TestMemoryDependentHeldUntilSuccess(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, Job{ID: "transcode-1", Kind: "transcode"}); err != nil {
		t.Fatalf("enqueue transcode: %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "cleanup-1", Kind: "delete_original", DependsOn: []string{"transcode-1"}}); err != nil {
		t.Fatalf("enqueue cleanup: %v", err)
	}

	if !q.Held("cleanup-1") {
		t.Fatal("dependent job should be held back")
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != "transcode-1" {
		t.Fatalf("expected transcode job first, got %q", job.ID)
	}

	if err := q.MarkDone(ctx, "transcode-1", true); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	job, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue dependent: %v", err)
	}
	if job.ID != "cleanup-1" {
		t.Fatalf("expected cleanup job after dependency success, got %q", job.ID)
	}
}

func TestMemoryDependentDiscardedOnFailure(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, Job{ID: "cleanup-1", DependsOn: []string{"transcode-1"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.MarkDone(ctx, "transcode-1", false); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	if q.Held("cleanup-1") {
		t.Fatal("dependent of a failed job should be discarded")
	}

	dequeueCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(dequeueCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no runnable job, got %v", err)
	}
}

func TestMemoryMultipleDependencies(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx := context.Background()
	deps := []string{"t-480", "t-720", "t-1080"}
	if err := q.Enqueue(ctx, Job{ID: "cleanup", DependsOn: deps}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for _, dep := range deps[:2] {
		if err := q.MarkDone(ctx, dep, true); err != nil {
			t.Fatalf("mark done %s: %v", dep, err)
		}
		if !q.Held("cleanup") {
			t.Fatalf("cleanup released before all dependencies completed (%s)", dep)
		}
	}

	if err := q.MarkDone(ctx, deps[2], true); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != "cleanup" {
		t.Fatalf("expected cleanup job, got %q", job.ID)
	}
}

func TestMemoryEnqueueAfterDependencyResolved(t *testing.T) {
	q := NewMemory()
	defer q.Close()

	ctx := context.Background()
	if err := q.MarkDone(ctx, "transcode-1", true); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "cleanup-1", DependsOn: []string{"transcode-1"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != "cleanup-1" {
		t.Fatalf("expected immediately runnable job, got %q", job.ID)
	}
}

func TestMemoryClose(t *testing.T) {
	q := NewMemory()
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := q.Enqueue(context.Background(), Job{ID: "a"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on enqueue, got %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on dequeue, got %v", err)
	}
}
