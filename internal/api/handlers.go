package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/processing"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

const (
	statusQueued     = "queued"
	statusScanFailed = "scan_failed"
)

type scanResponse struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	JobID  string             `json:"jobId,omitempty"`
	Items  []model.OutfitItem `json:"items,omitempty"`
	Cached bool               `json:"cached,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageSize+64*1024)
	form, err := s.readUpload(r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer form.close()
	if !s.allowedType(form.contentType) {
		http.Error(w, fmt.Sprintf("unsupported image type %q", form.contentType), http.StatusUnsupportedMediaType)
		return
	}

	postID := uuid.NewString()
	imageKey := fmt.Sprintf("posts/%s/%s", postID, objectName(form.filename))
	if _, err := form.file.Seek(0, 0); err != nil {
		http.Error(w, "failed to read upload", http.StatusInternalServerError)
		return
	}
	if err := s.images.Put(ctx, imageKey, form.file, form.size, form.contentType); err != nil {
		s.log.Error("store image failed", "post_id", postID, "err", err)
		http.Error(w, "failed to store image", http.StatusInternalServerError)
		return
	}
	post := &model.Post{
		ID:          postID,
		UserID:      form.userID,
		Caption:     form.caption,
		ImageKey:    imageKey,
		ContentType: form.contentType,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.log.Error("create post failed", "post_id", postID, "err", err)
		http.Error(w, "failed to store post", http.StatusInternalServerError)
		return
	}
	// The post exists from here on. A dispatch failure is reported in the
	// body so the client re-triggers the scan instead of re-uploading.
	status := statusQueued
	if err := s.dispatcher.Dispatch(ctx, postID, imageKey); err != nil {
		s.log.Error("dispatch scan failed", "post_id", postID, "err", err)
		status = statusScanFailed
	}
	respondJSON(w, http.StatusAccepted, scanResponse{ID: postID, Status: status})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !post.Scanned() {
		http.Error(w, "post not scanned yet", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":     post.ScanResults,
		"scannedAt": post.ScannedAt,
	})
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookup(w, r)
	if !ok {
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if err := s.dispatcher.Dispatch(r.Context(), post.ID, post.ImageKey); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, scanResponse{ID: post.ID, Status: statusQueued})
		return
	}

	scanner, ok := s.dispatcher.(Scanner)
	if !ok {
		http.Error(w, "waiting for scans is not supported by this deployment", http.StatusNotImplemented)
		return
	}
	task, err := scanner.Scan(r.Context(), post.ID, post.ImageKey)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := task.Wait(r.Context())
	if res == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		s.log.Error("scan finished with error", "post_id", post.ID, "err", err)
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scanResponse{
		ID:     post.ID,
		Status: string(res.Job.Status),
		JobID:  res.Job.ID,
		Items:  res.Items,
		Cached: res.Cached,
	})
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	canceler, ok := s.dispatcher.(Canceler)
	if !ok {
		http.Error(w, "cancelling scans is not supported by this deployment", http.StatusNotImplemented)
		return
	}
	if !canceler.Cancel(id) {
		http.Error(w, "no scan in progress", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusAccepted, scanResponse{ID: id, Status: "cancelling"})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	// r.URL.Path is already unescaped, unlike the raw wildcard param.
	key := strings.TrimPrefix(r.URL.Path, "/images/")
	q := r.URL.Query()
	expires, signature := q.Get("expires"), q.Get("signature")
	if key == "" || expires == "" || signature == "" {
		http.Error(w, "missing parameters", http.StatusBadRequest)
		return
	}
	if err := s.local.Verify(key, expires, signature); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	f, err := s.local.Open(key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(w, r, path.Base(key), modTime, f)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.Post, bool) {
	post, err := s.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("load post failed", "err", err)
		}
		writeError(w, err)
		return nil, false
	}
	return post, true
}

// objectName reduces a client file name to a single safe key segment.
func objectName(filename string) string {
	name := strings.ReplaceAll(path.Base(filename), "..", "_")
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}

func (s *Server) allowedType(contentType string) bool {
	for _, allowed := range s.cfg.AllowedTypes {
		if allowed == contentType {
			return true
		}
	}
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrScanInProgress), errors.Is(err, storage.ErrStaleScan):
		return http.StatusConflict
	case errors.Is(err, scan.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, processing.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, scan.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, scan.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := http.StatusText(code)
	if code < http.StatusInternalServerError {
		msg = err.Error()
	}
	respondJSON(w, code, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
