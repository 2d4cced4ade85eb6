// Package bootstrap builds the dependencies shared by the FitSpo binaries
// from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"

	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/database"
	"github.com/dharsanguruparan/FitSpo/internal/events"
	"github.com/dharsanguruparan/FitSpo/internal/inference"
	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/repository"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
	"github.com/dharsanguruparan/FitSpo/internal/sqlitestore"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

// PostStore is satisfied by the memory, SQLite and Postgres post stores.
type PostStore interface {
	Create(ctx context.Context, post *model.Post) error
	Get(ctx context.Context, id string) (*model.Post, error)
	SaveScanResults(ctx context.Context, postID string, items []model.OutfitItem, scannedAt time.Time) error
}

// OpenPosts opens the post store selected by cfg.Store. The returned func
// releases it.
func OpenPosts(ctx context.Context, cfg *config.Config) (PostStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storage.NewMemoryStore(), func() {}, nil
	case config.StoreSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repository.NewPostRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// NewOrchestrator builds the scan workflow against the configured remote
// scan service. notifier may be nil.
func NewOrchestrator(cfg *config.Config, cache scan.Cache, notifier scan.Notifier, logger *slog.Logger) (*scan.Orchestrator, error) {
	if err := cfg.RequireScanAPI(); err != nil {
		return nil, err
	}
	client, err := inference.New(inference.Options{
		BaseURL:       cfg.ScanAPIURL,
		Token:         cfg.ScanAPIToken,
		Timeout:       cfg.ScanTimeout,
		RatePerSecond: cfg.ScanRate,
	}, logger)
	if err != nil {
		return nil, err
	}
	return scan.New(client, cache, scan.Options{
		Interval:    cfg.ScanPollInterval,
		MaxAttempts: cfg.ScanMaxAttempts,
		Notifier:    notifier,
	}, logger), nil
}

// ConnectEvents connects to NATS when FITSPO_NATS_URL is set. Without it the
// notifier is nil and no events are published.
func ConnectEvents(cfg *config.Config, logger *slog.Logger) (scan.Notifier, func(), error) {
	if cfg.NATSURL == "" {
		return nil, func() {}, nil
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("fitspo"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("publishing scan events", "subject", events.SubjectScanCompleted)
	return events.NewPublisher(nc), nc.Close, nil
}

// RedisOpt returns the asynq connection options for cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// ScanTaskTimeout bounds a whole scan task: every poll interval plus one
// request timeout per remote call.
func ScanTaskTimeout(cfg *config.Config) time.Duration {
	calls := time.Duration(cfg.ScanMaxAttempts + 1)
	return time.Duration(cfg.ScanMaxAttempts)*cfg.ScanPollInterval + calls*cfg.ScanTimeout
}
