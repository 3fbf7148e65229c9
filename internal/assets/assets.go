// Package assets stores generated images and uploaded photos. Two backends
// implement ObjectStore: a MinIO client for deployments with object storage
// and a filesystem store for development and tests. Keys are built by the
// helpers in keys.go so both backends lay objects out identically.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tottales/internal/config"
	"tottales/internal/services"
)

// SignedURLExpiry bounds presigned download links from the MinIO backend.
const SignedURLExpiry = 24 * time.Hour

// ObjectStore persists binary assets under bucket-scoped keys and returns a
// URL the stored object can be fetched from.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, bucket, key string) error
	SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// New selects the backend named by configuration.
func New(cfg *config.Config, logger *slog.Logger) (ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMinio:
		return NewMinioStore(cfg, logger)
	case config.StorageBackendLocal:
		return NewLocalStore(cfg.Storage.LocalDir, logger)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "assets", "new",
			fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend), nil)
	}
}
