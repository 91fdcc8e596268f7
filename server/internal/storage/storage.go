package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shotspool/shotspool/server/internal/config"
)

// Store persists one upload and returns where it was written.
type Store interface {
	Save(ctx context.Context, name string, received time.Time, r io.Reader) (string, error)
}

// New returns the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "fs", "":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
}

// datePath returns YYYY-MM-DD/name for the UTC day of t.
func datePath(t time.Time, name string) string {
	return path.Join(t.UTC().Format("2006-01-02"), name)
}

// FS writes uploads under a root directory.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %q: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Save writes r to <root>/<date>/<name> via a temp file and rename. An
// existing file with the same name is replaced.
func (s *FS) Save(_ context.Context, name string, received time.Time, r io.Reader) (string, error) {
	target := filepath.Join(s.root, filepath.FromSlash(datePath(received, name)))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create %q: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmp := f.Name()

	var errs *multierror.Error
	if _, err := io.Copy(f, r); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("write: %w", err))
	}
	if err := f.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close: %w", err))
	}
	if errs.ErrorOrNil() == nil {
		if err := os.Rename(tmp, target); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rename: %w", err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("storage: save %q: %w", name, err)
	}
	return target, nil
}
