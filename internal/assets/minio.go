package assets

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/services"
)

// MinioStore persists assets in an S3-compatible object store.
type MinioStore struct {
	client        *minio.Client
	publicBaseURL string
	logger        *slog.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewMinioStore connects to the endpoint named by the storage configuration.
func NewMinioStore(cfg *config.Config, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "minio", "connect to object storage", err)
	}
	return &MinioStore{
		client:        client,
		publicBaseURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		logger:        logging.NewComponentLogger(logger, "assets"),
		ensured:       make(map[string]bool),
	}, nil
}

// Upload writes data under bucket/key and returns a fetchable URL. Buckets
// are created on first use.
func (s *MinioStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "upload", "put object", err)
	}
	s.logger.Debug("object uploaded",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int("bytes", len(data)))
	return s.objectURL(ctx, bucket, key)
}

// Remove deletes an object. Removing a missing object is not an error.
func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, "assets", "remove", "remove object", err)
	}
	return nil
}

// SignedURL produces a presigned download link.
func (s *MinioStore) SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = SignedURLExpiry
	}
	signed, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "assets", "sign", "presign object", err)
	}
	return signed.String(), nil
}

func (s *MinioStore) objectURL(ctx context.Context, bucket, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + bucket + "/" + key, nil
	}
	return s.SignedURL(ctx, bucket, key, SignedURLExpiry)
}

func (s *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	done := s.ensured[bucket]
	s.mu.Unlock()
	if done {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "assets", "upload", "check bucket", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return services.Wrap(services.ErrTransient, "assets", "upload", "create bucket", err)
		}
		s.logger.Info("bucket created", logging.String("bucket", bucket))
	}

	s.mu.Lock()
	s.ensured[bucket] = true
	s.mu.Unlock()
	return nil
}
