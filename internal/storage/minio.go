package storage

import (
	"context"
	"fmt"
	"io"

	"support-chat-backend/internal/env"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the configured endpoint and creates the bucket
// when it does not exist yet.
func NewMinioStore(ctx context.Context) (*MinioStore, error) {
	if err := env.Require(env.MinioEndpoint, env.MinioAccessKey, env.MinioSecretKey); err != nil {
		return nil, err
	}

	client, err := minio.New(env.Get(env.MinioEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(env.Get(env.MinioAccessKey), env.Get(env.MinioSecretKey), ""),
		Secure: env.GetBool(env.MinioUseSSL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	bucket := env.GetOrDefault(env.MinioBucket, "support-chat-uploads")
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		log.Info().Str("bucket", bucket).Msg("created upload bucket")
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Save(ctx context.Context, name, contentType string, r io.Reader, maxBytes int64) (Object, error) {
	if !validName(name) {
		return Object{}, ErrInvalidName
	}

	cr := &capReader{r: r, limit: maxBytes}
	info, err := m.client.PutObject(ctx, m.bucket, name, cr, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		if rmErr := m.Remove(ctx, name); rmErr != nil {
			log.Warn().Err(rmErr).Str("file", name).Msg("failed to remove partial upload")
		}
		if cr.exceeded {
			return Object{}, ErrTooLarge
		}
		return Object{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return Object{Name: name, Size: info.Size, ContentType: contentType}, nil
}

func (m *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, Object, error) {
	if !validName(name) {
		return nil, Object{}, ErrInvalidName
	}

	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return obj, Object{Name: name, Size: stat.Size, ContentType: stat.ContentType}, nil
}

func (m *MinioStore) Remove(ctx context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
