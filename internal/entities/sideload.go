package entities

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/files"
)

const (
	DefaultSideloadTimeout  = 20 * time.Second
	DefaultSideloadMaxBytes = 10 << 20
)

var (
	ErrUnsupportedScheme = errors.New("only http and https URLs can be fetched")
	ErrNotAnImage        = errors.New("remote file is not an image")
	ErrRemoteTooLarge    = errors.New("remote file exceeds size limit")
)

// HTTPSideloader downloads remote images into media storage and records
// them as attachments.
type HTTPSideloader struct {
	client   *http.Client
	storage  files.Storage
	recorder AttachmentRecorder
	maxBytes int64
	group    singleflight.Group
}

// NewHTTPSideloader creates a sideloader. Zero timeout or maxBytes use the defaults.
func NewHTTPSideloader(storage files.Storage, recorder AttachmentRecorder, timeout time.Duration, maxBytes int64) *HTTPSideloader {
	if timeout <= 0 {
		timeout = DefaultSideloadTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultSideloadMaxBytes
	}
	return &HTTPSideloader{
		client:   &http.Client{Timeout: timeout},
		storage:  storage,
		recorder: recorder,
		maxBytes: maxBytes,
	}
}

// Sideload fetches rawURL and returns the new attachment ID. Concurrent
// calls for the same URL share one download.
func (s *HTTPSideloader) Sideload(ctx context.Context, rawURL string) (int64, error) {
	v, err, _ := s.group.Do(rawURL, func() (any, error) {
		return s.fetch(ctx, rawURL)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *HTTPSideloader) fetch(ctx context.Context, rawURL string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fetchFailed(fmt.Errorf("parse url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0, fetchFailed(ErrUnsupportedScheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fetchFailed(fmt.Errorf("build request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fetchFailed(fmt.Errorf("download: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fetchFailed(fmt.Errorf("download: unexpected status %s", resp.Status))
	}
	if resp.ContentLength > s.maxBytes {
		return 0, fetchFailed(ErrRemoteTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return 0, fetchFailed(fmt.Errorf("download: %w", err))
	}
	if int64(len(data)) > s.maxBytes {
		return 0, fetchFailed(ErrRemoteTooLarge)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return 0, fetchFailed(ErrNotAnImage)
	}

	filename := path.Base(u.Path)
	if filename == "" || filename == "/" || filename == "." {
		filename = "image"
	}
	ext := path.Ext(filename)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
			filename += ext
		}
	}

	key := path.Join("attachments", uuid.NewString()+strings.ToLower(ext))
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return 0, fmt.Errorf("store attachment: %w", err)
	}

	id, err := s.recorder.CreateAttachment(ctx, Attachment{
		SourceURL: rawURL,
		URL:       s.storage.URL(key),
		Filename:  filename,
	})
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return 0, fmt.Errorf("record attachment: %w", err)
	}

	slog.Info("attachment sideloaded", "url", rawURL, "key", key, "id", id, "bytes", len(data))
	return id, nil
}

// fetchFailed marks err as a failure to obtain the remote file.
func fetchFailed(err error) error {
	return fmt.Errorf("%w: %w", core.ErrRemoteFetch, err)
}
