// Package api exposes the FitSpo HTTP endpoints: post uploads, post reads,
// scan triggers and signed reads of locally stored images.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dharsanguruparan/FitSpo/internal/config"
	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

// Posts is the post record store.
type Posts interface {
	Create(ctx context.Context, post *model.Post) error
	Get(ctx context.Context, id string) (*model.Post, error)
}

// Images stores uploaded image bytes under an object key.
type Images interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Dispatcher schedules a scan of a stored post image.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID, imageKey string) error
}

// Scanner is implemented by dispatchers that run scans in this process and
// can hand back a Task to wait on.
type Scanner interface {
	Scan(ctx context.Context, postID, imageKey string) (*scan.Task, error)
}

// Canceler is implemented by dispatchers that can stop a running scan.
type Canceler interface {
	Cancel(postID string) bool
}

// LocalImages serves images written to local disk through signed URLs.
type LocalImages interface {
	Open(key string) (*os.File, error)
	Verify(key, expires, signature string) error
}

// Deps bundles the collaborators of a Server. Local may be nil when images
// live in S3.
type Deps struct {
	Posts      Posts
	Images     Images
	Dispatcher Dispatcher
	Local      LocalImages
	Logger     *slog.Logger
}

// Server exposes HTTP endpoints for posts and their outfit scans.
type Server struct {
	cfg        *config.Config
	posts      Posts
	images     Images
	dispatcher Dispatcher
	local      LocalImages
	log        *slog.Logger

	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		posts:      deps.Posts,
		images:     deps.Images,
		dispatcher: deps.Dispatcher,
		local:      deps.Local,
		log:        logger.With("component", "api"),
	}
	s.handler = otelhttp.NewHandler(s.routes(), "fitspo-api")
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", "addr", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(s.log), loggingMiddleware(s.log), corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Post("/posts", s.handleUpload)
	r.Get("/posts/{id}", s.handleGetPost)
	r.Get("/posts/{id}/scan-results", s.handleScanResults)
	r.Post("/posts/{id}/scan", s.handleStartScan)
	r.Delete("/posts/{id}/scan", s.handleCancelScan)
	if s.local != nil {
		r.Get("/images/*", s.handleImage)
	}
	return r
}
