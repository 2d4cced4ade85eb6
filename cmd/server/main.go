// Command server runs FitSpo as a single process: HTTP API, image storage and
// an in-process scan pool. It needs no Redis; posts live in memory, SQLite or
// Postgres depending on FITSPO_STORE.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/FitSpo/internal/api"
	"github.com/dharsanguruparan/FitSpo/internal/bootstrap"
	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/logging"
	"github.com/dharsanguruparan/FitSpo/internal/processing"
	"github.com/dharsanguruparan/FitSpo/internal/s3storage"
	"github.com/dharsanguruparan/FitSpo/internal/signing"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	posts, closePosts, err := bootstrap.OpenPosts(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePosts()

	notifier, closeEvents, err := bootstrap.ConnectEvents(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	orchestrator, err := bootstrap.NewOrchestrator(cfg, posts, notifier, logger)
	if err != nil {
		return err
	}

	deps := api.Deps{Posts: posts, Logger: logger}
	var images processing.ImageURLs
	if cfg.UseS3() {
		store, err := s3storage.New(cfg)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		deps.Images, images = store, store
	} else {
		dir := cfg.UploadDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "fitspo")
		}
		files, err := storage.NewFileStore(dir, cfg.PublicURL, signing.NewSigner(cfg.SigningSecret), cfg.SignedURLTTL)
		if err != nil {
			return err
		}
		deps.Images, deps.Local, images = files, files, files
	}

	pool := processing.New(orchestrator, images, cfg.ProcessingPool, logger)
	deps.Dispatcher = pool
	srv := api.New(cfg, deps)

	g, gCtx := errgroup.WithContext(ctx)
	pool.Start(gCtx)
	g.Go(func() error {
		<-gCtx.Done()
		pool.Wait()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gCtx)
	})
	logger.Info("fitspo started", "store", cfg.Store, "s3", cfg.UseS3(), "workers", cfg.ProcessingPool)
	return g.Wait()
}
