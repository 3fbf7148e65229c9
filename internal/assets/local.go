package assets

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tottales/internal/logging"
	"tottales/internal/services"
)

// LocalStore writes assets under a root directory, one subdirectory per
// bucket. URLs are file:// paths, which keeps development setups free of an
// object storage dependency.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "local", "local storage directory is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "local", "create storage directory", err)
	}
	return &LocalStore{
		root:   root,
		logger: logging.NewComponentLogger(logger, "assets"),
	}, nil
}

// Upload writes data to root/bucket/key and returns a file URL.
func (s *LocalStore) Upload(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	target := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "create object directory", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "write object", err)
	}
	s.logger.Debug("object written",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int("bytes", len(data)))
	return "file://" + target, nil
}

// Remove deletes the object file. A missing file is not an error.
func (s *LocalStore) Remove(_ context.Context, bucket, key string) error {
	target := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "assets", "remove", "remove object", err)
	}
	return nil
}

// SignedURL returns the file URL; local files need no signing.
func (s *LocalStore) SignedURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	target := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	if _, err := os.Stat(target); err != nil {
		return "", services.Wrap(services.ErrNotFound, "assets", "sign", "object does not exist", err)
	}
	return "file://" + target, nil
}
