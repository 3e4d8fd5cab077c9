package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dequeuePollInterval = 2 * time.Second

// Redis is a Queue backed by Redis lists so jobs survive process restarts and
// can be consumed by dedicated worker processes. Runnable jobs sit on a list;
// jobs with unmet dependencies are parked in a hash and moved onto the list
// as their dependencies report success.
type Redis struct {
	client *redis.Client

	readyKey   string
	pendingKey string
	outcomeKey string

	// afterDepCheck lets tests interleave an outcome write between the
	// dependency scan and the park.
	afterDepCheck func()
}

// NewRedis constructs a Redis-backed queue using the provided key prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "videoflix:jobs"
	}
	return &Redis{
		client:     client,
		readyKey:   prefix + ":ready",
		pendingKey: prefix + ":pending",
		outcomeKey: prefix + ":outcomes",
	}
}

// Enqueue schedules the job, parking it while dependencies are unmet.
func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	state, err := q.depState(ctx, job)
	if err != nil {
		return err
	}
	if state == depsFailed {
		// A dependency already failed; the job never runs.
		return nil
	}

	if q.afterDepCheck != nil {
		q.afterDepCheck()
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if state == depsWaiting {
		if err := q.client.HSet(ctx, q.pendingKey, job.ID, encoded).Err(); err != nil {
			return fmt.Errorf("park job %s: %w", job.ID, err)
		}
		// A MarkDone for the last outstanding dependency may have scanned
		// the pending hash between the check above and the park, in which
		// case nobody else will ever promote this job. Settle it again now
		// that it is visible.
		return q.settleParked(ctx, job)
	}

	if err := q.client.LPush(ctx, q.readyKey, encoded).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks until a runnable job is available or the context is canceled.
func (q *Redis) Dequeue(ctx context.Context) (Job, error) {
	for {
		res, err := q.client.BRPop(ctx, dequeuePollInterval, q.readyKey).Result()
		if errors.Is(err, redis.Nil) {
			if err := ctx.Err(); err != nil {
				return Job{}, err
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("pop job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// MarkDone records the outcome and promotes or discards parked dependents.
func (q *Redis) MarkDone(ctx context.Context, jobID string, succeeded bool) error {
	outcome := "ok"
	if !succeeded {
		outcome = "failed"
	}
	if err := q.client.HSet(ctx, q.outcomeKey, jobID, outcome).Err(); err != nil {
		return fmt.Errorf("record outcome for %s: %w", jobID, err)
	}

	parked, err := q.client.HGetAll(ctx, q.pendingKey).Result()
	if err != nil {
		return fmt.Errorf("list parked jobs: %w", err)
	}

	for id, raw := range parked {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return fmt.Errorf("decode parked job %s: %w", id, err)
		}

		waits := false
		for _, dep := range job.DependsOn {
			if dep == jobID {
				waits = true
				break
			}
		}
		if !waits {
			continue
		}

		if err := q.settleParked(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the underlying client connection.
func (q *Redis) Close() error {
	return q.client.Close()
}

type depOutcome int

const (
	depsMet depOutcome = iota
	depsWaiting
	depsFailed
)

func (q *Redis) depState(ctx context.Context, job Job) (depOutcome, error) {
	state := depsMet
	for _, dep := range job.DependsOn {
		outcome, err := q.client.HGet(ctx, q.outcomeKey, dep).Result()
		if errors.Is(err, redis.Nil) {
			state = depsWaiting
			continue
		}
		if err != nil {
			return state, fmt.Errorf("check dependency %s: %w", dep, err)
		}
		if outcome != "ok" {
			return depsFailed, nil
		}
	}
	return state, nil
}

// settleParked resolves a job sitting in the pending hash: discard it when a
// dependency has failed, promote it onto the ready list when every dependency
// succeeded, leave it parked otherwise. The HDel doubles as a claim so a
// concurrent settle of the same job promotes it exactly once.
func (q *Redis) settleParked(ctx context.Context, job Job) error {
	state, err := q.depState(ctx, job)
	if err != nil {
		return err
	}
	if state == depsWaiting {
		return nil
	}

	claimed, err := q.client.HDel(ctx, q.pendingKey, job.ID).Result()
	if err != nil {
		return fmt.Errorf("claim parked job %s: %w", job.ID, err)
	}
	if claimed == 0 || state == depsFailed {
		return nil
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey, encoded).Err(); err != nil {
		return fmt.Errorf("promote job %s: %w", job.ID, err)
	}
	return nil
}

var _ Queue = (*Redis)(nil)
