package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
)

var (
	errTooLarge   = errors.New("image exceeds size limit")
	errEmptyImage = errors.New("empty image")
	errNoImage    = errors.New("missing file field")
)

// maxFieldBytes bounds the caption and user id form values.
const maxFieldBytes = 4 << 10

type uploadForm struct {
	file        *os.File
	size        int64
	contentType string
	filename    string
	caption     string
	userID      string
}

func (u *uploadForm) close() {
	u.file.Close()
	os.Remove(u.file.Name())
}

// readUpload streams the multipart body. The image goes to a temp file so
// the size limit holds without buffering it in memory; text fields may come
// before or after it.
func (s *Server) readUpload(r *http.Request) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expecting multipart form: %w", err)
	}
	form := &uploadForm{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if form.file != nil {
				form.close()
			}
			return nil, fmt.Errorf("read form: %w", err)
		}
		switch part.FormName() {
		case "file":
			if form.file == nil {
				err = s.persistTemp(part, form)
			}
		case "caption":
			form.caption, err = readField(part)
		case "userId":
			form.userID, err = readField(part)
		}
		part.Close()
		if err != nil {
			if form.file != nil {
				form.close()
			}
			return nil, err
		}
	}
	if form.file == nil {
		return nil, errNoImage
	}
	return form, nil
}

func (s *Server) persistTemp(part *multipart.Part, form *uploadForm) error {
	tmpFile, err := os.CreateTemp("", "fitspo-upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) error {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxImageSize {
				return fail(errTooLarge)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			var maxErr *http.MaxBytesError
			if errors.As(readErr, &maxErr) {
				return fail(errTooLarge)
			}
			return fail(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return fail(errEmptyImage)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "image"
	}
	form.file = tmpFile
	form.size = written
	form.contentType = http.DetectContentType(sniff)
	form.filename = filename
	return nil
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", part.FormName(), err)
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("%s too long", part.FormName())
	}
	return strings.TrimSpace(string(data)), nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errTooLarge), errors.As(err, &maxErr):
		http.Error(w, errTooLarge.Error(), http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
