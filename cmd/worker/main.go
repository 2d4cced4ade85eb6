package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/dharsanguruparan/FitSpo/internal/bootstrap"
	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/logging"
	"github.com/dharsanguruparan/FitSpo/internal/s3storage"
	"github.com/dharsanguruparan/FitSpo/internal/worker"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	posts, closePosts, err := bootstrap.OpenPosts(ctx, cfg)
	if err != nil {
		logger.Error("open post store", "err", err)
		os.Exit(1)
	}
	defer closePosts()

	notifier, closeEvents, err := bootstrap.ConnectEvents(cfg, logger)
	if err != nil {
		logger.Error("connect events", "err", err)
		os.Exit(1)
	}
	defer closeEvents()

	orchestrator, err := bootstrap.NewOrchestrator(cfg, posts, notifier, logger)
	if err != nil {
		logger.Error("init orchestrator", "err", err)
		os.Exit(1)
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Error("init storage", "err", err)
		os.Exit(1)
	}

	server := asynq.NewServer(bootstrap.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Logger:      logging.NewAsynqLogger(logger),
	})
	processor := worker.NewProcessor(orchestrator, store, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
