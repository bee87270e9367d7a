// Package storage downloads audio objects from the configured object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vibe-transcriber-service/internal/config"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrAccessDenied is returned when credentials do not allow the read.
	ErrAccessDenied = errors.New("storage: access denied")
)

// Downloader copies an object into w.
type Downloader interface {
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

// New builds the downloader selected by cfg.
func New(cfg config.StorageConfig) (Downloader, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3FromConfig(cfg)
	case "local":
		return NewLocal(cfg.LocalRoot), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
