package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/videoflix/backend/internal/auth"
	"github.com/videoflix/backend/internal/config"
	"github.com/videoflix/backend/internal/db"
	"github.com/videoflix/backend/internal/handlers"
	"github.com/videoflix/backend/internal/media"
	"github.com/videoflix/backend/internal/middleware"
	"github.com/videoflix/backend/internal/notifications"
	"github.com/videoflix/backend/internal/queue"
	"github.com/videoflix/backend/internal/repositories"
	"github.com/videoflix/backend/internal/storage"
)

// dependencies bundles the wired collaborators plus the background pieces the
// server must shut down.
type dependencies struct {
	handlers handlers.Dependencies
	pipeline *media.Pipeline
	queue    queue.Queue
}

func (d dependencies) close(logger *slog.Logger) {
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			logger.Warn("close job queue", "error", err)
		}
	}
}

// buildDependencies wires together the concrete implementations used by the
// HTTP handlers and the transcode pipeline.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (dependencies, error) {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	singleUse := auth.NewSingleUseTokens(cfg.JWTSecret, cfg.SingleUseTTL)

	mailer := notifications.NewSMTPMailer(cfg.MailHost, cfg.MailPort, cfg.MailUsername, cfg.MailPassword, cfg.MailFrom)
	events := notifications.NewEmailDispatcher(mailer, cfg.FrontendURL, logger)

	layout := media.Layout{Root: cfg.MediaRoot}

	q := newQueue(cfg)
	transcoder := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout)
	pipeline := media.NewPipeline(q, transcoder, layout, media.PipelineConfig{Workers: cfg.QueueWorkers}, logger)

	var thumbnails storage.ThumbnailStore
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3Store(ctx, cfg.ObjectStore)
		if err != nil {
			return dependencies{}, err
		}
		thumbnails = store
	} else {
		thumbnails = storage.NewLocalStore(cfg.MediaRoot, cfg.PublicBaseURL)
	}

	deps := handlers.Dependencies{
		Users:      repositories.NewPostgresUserRepository(pool),
		Tokens:     tokens,
		SingleUse:  singleUse,
		Events:     events,
		Videos:     repositories.NewPostgresVideoRepository(pool),
		Layout:     layout,
		Pipeline:   pipeline,
		Cleaner:    media.NewCleaner(layout, logger),
		Thumbnails: thumbnails,

		Limiter:        middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		TokenValidator: tokens,
		SecureCookies:  cfg.SecureCookies,

		ServeMedia: cfg.ObjectStore.Bucket == "",
		MediaRoot:  cfg.MediaRoot,
	}

	return dependencies{handlers: deps, pipeline: pipeline, queue: q}, nil
}

// buildPipeline wires only the pieces the worker command needs.
func buildPipeline(cfg config.Config, logger *slog.Logger) (*media.Pipeline, queue.Queue, error) {
	layout := media.Layout{Root: cfg.MediaRoot}
	q := newQueue(cfg)
	transcoder := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout)
	pipeline := media.NewPipeline(q, transcoder, layout, media.PipelineConfig{Workers: cfg.QueueWorkers}, logger)
	return pipeline, q, nil
}

func newQueue(cfg config.Config) queue.Queue {
	if cfg.RedisAddr == "" {
		return queue.NewMemory()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return queue.NewRedis(client, cfg.RedisQueueName)
}
