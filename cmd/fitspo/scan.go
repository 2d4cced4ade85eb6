package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FitSpo/internal/bootstrap"
	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/database"
	"github.com/dharsanguruparan/FitSpo/internal/events"
	"github.com/dharsanguruparan/FitSpo/internal/logging"
	"github.com/dharsanguruparan/FitSpo/internal/s3storage"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
	"github.com/dharsanguruparan/FitSpo/internal/signing"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

func newScanCmd() *cobra.Command {
	var imageURL string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "scan <post-id>",
		Short: "Scan a post now and cache the detected outfit items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := "error"
			if verbose {
				level = "debug"
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), level)
			if err := requireSharedStore(cfg); err != nil {
				return err
			}

			posts, closePosts, err := bootstrap.OpenPosts(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePosts()
			post, err := posts.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if imageURL == "" {
				if imageURL, err = resolveImageURL(ctx, cfg, post.ImageKey); err != nil {
					return err
				}
			}

			notifier, closeEvents, err := bootstrap.ConnectEvents(cfg, logger)
			if err != nil {
				return err
			}
			defer closeEvents()
			orchestrator, err := bootstrap.NewOrchestrator(cfg, posts, notifier, logger)
			if err != nil {
				return err
			}

			// The task shares ctx, so an interrupt cancels the scan and Wait
			// returns once it has stopped.
			task := orchestrator.Start(ctx, scan.Request{PostID: post.ID, ImageURL: imageURL})
			res, err := task.Wait(context.Background())
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&imageURL, "image-url", "", "Scan this URL instead of the post's stored image")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log workflow progress to stderr")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Print the cached scan results of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := requireSharedStore(cfg); err != nil {
				return err
			}
			posts, closePosts, err := bootstrap.OpenPosts(ctx, cfg)
			if err != nil {
				return err
			}
			defer closePosts()
			post, err := posts.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printPost(cmd.OutOrStdout(), post)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the posts table in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			switch cfg.Store {
			case config.StorePostgres:
				pool, err := database.Connect(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := database.EnsureSchema(ctx, pool); err != nil {
					return err
				}
			case config.StoreSQLite:
				// Opening the store applies its schema.
				_, closePosts, err := bootstrap.OpenPosts(ctx, cfg)
				if err != nil {
					return err
				}
				closePosts()
			default:
				return fmt.Errorf("store %q has no schema", cfg.Store)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okText("schema up to date"), "("+cfg.Store+")")
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print scan-completed events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return errors.New("FITSPO_NATS_URL is not set")
			}
			nc, err := nats.Connect(cfg.NATSURL, nats.Name("fitspo-cli"))
			if err != nil {
				return err
			}
			defer nc.Close()
			out := cmd.OutOrStdout()
			sub, err := events.Subscribe(nc, func(_ context.Context, evt events.ScanCompleted) {
				printEvent(out, evt)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			fmt.Fprintln(out, infoText("watching "+events.SubjectScanCompleted))
			<-cmd.Context().Done()
			return nil
		},
	}
}

// requireSharedStore rejects the memory store: its posts live only inside the
// server process, so the CLI would never find them.
func requireSharedStore(cfg *config.Config) error {
	if cfg.Store == config.StoreMemory {
		return errors.New("FITSPO_STORE=memory is private to the server process; set FITSPO_STORE to sqlite or postgres")
	}
	return nil
}

// resolveImageURL builds a URL the scan service can fetch for key, using S3
// presigning or the local signed-URL scheme depending on config.
func resolveImageURL(ctx context.Context, cfg *config.Config, key string) (string, error) {
	if cfg.UseS3() {
		store, err := s3storage.New(cfg)
		if err != nil {
			return "", err
		}
		return store.URL(ctx, key)
	}
	if cfg.SecretGenerated {
		return "", errors.New("FITSPO_SIGNING_SECRET is not set, so the server could not verify a locally signed image URL; set it or pass --image-url")
	}
	dir := cfg.UploadDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fitspo")
	}
	files, err := storage.NewFileStore(dir, cfg.PublicURL, signing.NewSigner(cfg.SigningSecret), cfg.SignedURLTTL)
	if err != nil {
		return "", err
	}
	return files.URL(ctx, key)
}
