// Package inference talks to the serverless functions that front the remote
// outfit detector: one starts a detection job, the other reports its status.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

const (
	submitPath = "/startOutfitScan"
	statusPath = "/getScanStatus"

	maxErrorBody = 512
)

// StatusError is returned when a function answers with a non-2xx code.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Path, e.Code, e.Body)
}

// Options configures the client. BaseURL is required.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RatePerSecond caps outgoing calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
}

// Client implements scan.Remote over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

type submitRequest struct {
	PostID   string `json:"postId"`
	ImageURL string `json:"imageURL"`
}

type submitResponse struct {
	PostID    string         `json:"postId"`
	Replicate *model.ScanJob `json:"replicate"`
}

type statusRequest struct {
	JobID string `json:"jobId"`
}

// New builds a Client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("inference: base url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.With("component", "inference"),
	}, nil
}

// Submit starts a detection job for the image of postID.
func (c *Client) Submit(ctx context.Context, postID, imageURL string) (*model.ScanJob, error) {
	var resp submitResponse
	if err := c.call(ctx, submitPath, submitRequest{PostID: postID, ImageURL: imageURL}, &resp); err != nil {
		return nil, err
	}
	if resp.Replicate == nil {
		return nil, fmt.Errorf("%s: response has no job", submitPath)
	}
	if resp.PostID != "" && resp.PostID != postID {
		c.log.Warn("submit answered for a different post", "post_id", postID, "got", resp.PostID)
	}
	return resp.Replicate, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*model.ScanJob, error) {
	var job model.ScanJob
	if err := c.call(ctx, statusPath, statusRequest{JobID: jobID}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", path, err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("scan service request failed", "path", path, "err", err)
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("scan service call", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
