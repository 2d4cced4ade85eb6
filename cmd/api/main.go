// Command api serves the FitSpo HTTP API and hands scans to the worker fleet
// through Redis.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/dharsanguruparan/FitSpo/internal/api"
	"github.com/dharsanguruparan/FitSpo/internal/bootstrap"
	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/logging"
	"github.com/dharsanguruparan/FitSpo/internal/queue"
	"github.com/dharsanguruparan/FitSpo/internal/s3storage"
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

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Error("init storage", "err", err)
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("ensure bucket", "err", err)
		os.Exit(1)
	}

	client := asynq.NewClient(bootstrap.RedisOpt(cfg))
	defer client.Close()
	dispatcher := queue.NewDispatcher(client, cfg.ScanLockTTL, bootstrap.ScanTaskTimeout(cfg))

	srv := api.New(cfg, api.Deps{
		Posts:      posts,
		Images:     store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Error("api stopped", "err", err)
		os.Exit(1)
	}
}
