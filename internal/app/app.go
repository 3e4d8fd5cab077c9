package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/videoflix/backend/internal/config"
	"github.com/videoflix/backend/internal/db"
	"github.com/videoflix/backend/internal/handlers"
	"github.com/videoflix/backend/internal/httpserver"
)

// Run bootstraps the Videoflix backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, worker, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "worker":
		return worker(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	router := handlers.NewRouter(logger, deps.handlers)
	srv := httpserver.New(cfg.AppPort, router)

	logger.Info("starting http server", "port", cfg.AppPort)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return deps.pipeline.Shutdown(shutdownCtx)
}

// worker runs the transcode pipeline without the HTTP surface. It only makes
// sense with a Redis-backed queue shared with a serve process.
func worker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return errors.New("worker requires VIDEOFLIX_REDIS_ADDR; the in-memory queue cannot be shared between processes")
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	pipeline, q, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("worker started", "queue", cfg.RedisQueueName, "workers", cfg.QueueWorkers)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-signalCh:
		logger.Info("received signal, shutting down worker", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	err = pipeline.Shutdown(shutdownCtx)
	if closeErr := q.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
