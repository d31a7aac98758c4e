package asr

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"resty.dev/v3"
)

// Fetcher downloads remote media files.
type Fetcher struct {
	http     *resty.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher refusing bodies larger than maxBytes.
// Zero means no limit.
func NewFetcher(maxBytes int64, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		http:     resty.New(),
		maxBytes: maxBytes,
		logger:   logger.With("component", "media_fetcher"),
	}
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	return f.http.Close()
}

// Fetch downloads url into dir under a random name and returns the path.
func (f *Fetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode())
	}

	body := resp.Bytes()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("downloaded file exceeds %d bytes", f.maxBytes)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	dest := filepath.Join(dir, uuid.NewString()+mediaExtension(url, resp.Header().Get("Content-Type")))
	if err := os.WriteFile(dest, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to store download: %w", err)
	}

	f.logger.DebugContext(ctx, "media downloaded", "bytes", len(body))
	return dest, nil
}

// mediaExtension picks a file extension from the URL path or content type.
func mediaExtension(rawURL, contentType string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if ext := path.Ext(p); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.Contains(mediaType, "mpeg"), strings.Contains(mediaType, "mp3"):
		return ".mp3"
	case strings.Contains(mediaType, "wav"):
		return ".wav"
	case strings.Contains(mediaType, "mp4"):
		return ".mp4"
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".audio"
}
