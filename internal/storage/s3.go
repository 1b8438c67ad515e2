package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"turnero/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Storage uploads files to an S3-compatible bucket and hands out
// presigned download URLs.
type S3Storage struct {
	client *minio.Client
	cfg    config.S3Config
	logger *zerolog.Logger
}

func NewS3Storage(ctx context.Context, cfg config.S3Config, logger *zerolog.Logger) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info().Str("bucket", cfg.Bucket).Msg("S3 bucket created")
	}

	return newS3Storage(client, cfg, logger), nil
}

func newS3Storage(client *minio.Client, cfg config.S3Config, logger *zerolog.Logger) *S3Storage {
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	return &S3Storage{client: client, cfg: cfg, logger: logger}
}

// Upload stores data under key and returns a presigned GET URL valid for
// the configured expiry.
func (s *S3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.URLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	s.logger.Info().Str("bucket", s.cfg.Bucket).Str("key", key).Int("bytes", len(data)).Msg("File uploaded")
	return url.String(), nil
}
