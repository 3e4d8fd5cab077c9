package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/videoflix/backend/internal/logging"
	"github.com/videoflix/backend/internal/models"
	"github.com/videoflix/backend/internal/queue"
)

const (
	// JobKindTranscode renders one resolution of one video.
	JobKindTranscode = "transcode"
	// JobKindDeleteOriginal removes the uploaded source file once every
	// transcode for the video has succeeded.
	JobKindDeleteOriginal = "delete_original"
)

type transcodePayload struct {
	VideoID    string `json:"video_id"`
	Source     string `json:"source"`
	Resolution string `json:"resolution"`
}

type deleteOriginalPayload struct {
	VideoID string `json:"video_id"`
	Source  string `json:"source"`
}

// Transcoder renders one HLS rendition of a source file.
type Transcoder interface {
	Transcode(ctx context.Context, source, destDir, resolution string) error
}

// PipelineConfig controls the concurrency characteristics of the pipeline.
type PipelineConfig struct {
	Workers int
}

// Pipeline moves transcoding off the request path. VideoCreated enqueues one
// transcode job per resolution plus a delete-original job that depends on all
// of them; workers drain the queue out of band. The original file is only
// deleted after every rendition exists: a failed transcode discards the
// delete job and keeps the upload.
type Pipeline struct {
	queue      queue.Queue
	transcoder Transcoder
	layout     Layout
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPipeline constructs the pipeline and starts its worker pool.
func NewPipeline(q queue.Queue, transcoder Transcoder, layout Layout, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		queue:      q,
		transcoder: transcoder,
		layout:     layout,
		logger:     logger,
		cancel:     cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(ctx)
	}

	return p
}

// VideoCreated schedules the transcode fan-out for a freshly created video
// that carries an original file. The creating request does not wait for any
// of the work to finish.
func (p *Pipeline) VideoCreated(ctx context.Context, video models.Video) error {
	if video.SourceFile == "" {
		return nil
	}

	transcodeIDs := make([]string, 0, len(Resolutions))
	for _, resolution := range Resolutions {
		payload, err := json.Marshal(transcodePayload{
			VideoID:    video.ID,
			Source:     video.SourceFile,
			Resolution: resolution,
		})
		if err != nil {
			return fmt.Errorf("encode transcode payload: %w", err)
		}

		jobID := uuid.NewString()
		if err := p.queue.Enqueue(ctx, queue.Job{
			ID:      jobID,
			Kind:    JobKindTranscode,
			Payload: payload,
		}); err != nil {
			return fmt.Errorf("enqueue transcode %s/%s: %w", video.ID, resolution, err)
		}
		transcodeIDs = append(transcodeIDs, jobID)
	}

	payload, err := json.Marshal(deleteOriginalPayload{VideoID: video.ID, Source: video.SourceFile})
	if err != nil {
		return fmt.Errorf("encode delete payload: %w", err)
	}

	if err := p.queue.Enqueue(ctx, queue.Job{
		ID:        uuid.NewString(),
		Kind:      JobKindDeleteOriginal,
		Payload:   payload,
		DependsOn: transcodeIDs,
	}); err != nil {
		return fmt.Errorf("enqueue delete original %s: %w", video.ID, err)
	}

	return nil
}

// Shutdown stops the workers, waiting for the in-flight jobs to finish.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.once.Do(p.cancel)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

const (
	dequeueRetryBase = 100 * time.Millisecond
	dequeueRetryMax  = 5 * time.Second
)

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()

	backoff := dequeueRetryBase
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			// Only shutdown ends the worker; transient dequeue errors
			// (a Redis blip, one undecodable entry) are retried so a
			// brief outage cannot drain the pool.
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			p.logger.Error("dequeue job", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > dequeueRetryMax {
				backoff = dequeueRetryMax
			}
			continue
		}
		backoff = dequeueRetryBase
		p.handleJob(ctx, job)
	}
}

func (p *Pipeline) handleJob(ctx context.Context, job queue.Job) {
	jobCtx, span := logging.StartSpan(logging.WithLogger(ctx, p.logger.With("job_id", job.ID, "job_kind", job.Kind)), job.Kind)
	defer span.End()

	logger := logging.FromContext(jobCtx)

	var err error
	switch job.Kind {
	case JobKindTranscode:
		err = p.handleTranscode(jobCtx, job)
	case JobKindDeleteOriginal:
		err = p.handleDeleteOriginal(jobCtx, job)
	default:
		// Recorded as failed so a garbage job never satisfies a dependency.
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		logger.Error("job failed", "error", err)
	}

	markCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if markErr := p.queue.MarkDone(markCtx, job.ID, err == nil); markErr != nil {
		logger.Error("record job outcome", "error", markErr)
	}
}

func (p *Pipeline) handleTranscode(ctx context.Context, job queue.Job) error {
	var payload transcodePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode transcode payload: %w", err)
	}

	destDir := p.layout.ResolutionDir(payload.VideoID, payload.Resolution)
	if err := p.transcoder.Transcode(ctx, payload.Source, destDir, payload.Resolution); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("rendition ready",
		"video_id", payload.VideoID,
		"resolution", payload.Resolution,
	)
	return nil
}

func (p *Pipeline) handleDeleteOriginal(ctx context.Context, job queue.Job) error {
	var payload deleteOriginalPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode delete payload: %w", err)
	}

	if err := os.Remove(payload.Source); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove original %s: %w", payload.Source, err)
	}

	logging.FromContext(ctx).Info("original removed", "video_id", payload.VideoID)
	return nil
}
