package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local reads objects from a directory tree, keyed by slash-separated paths
// relative to Root. Used for development and tests.
type Local struct {
	Root string
}

// NewLocal returns a directory-backed downloader.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

// Download copies Root/key into w.
func (l *Local) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return 0, fmt.Errorf("%s: %w", key, ErrAccessDenied)
	}

	f, err := os.Open(filepath.Join(l.Root, clean))
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return 0, fmt.Errorf("%s: %w", key, ErrNotFound)
		case errors.Is(err, fs.ErrPermission):
			return 0, fmt.Errorf("%s: %w", key, ErrAccessDenied)
		}
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}
