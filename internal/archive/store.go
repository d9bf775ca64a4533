package archive

import (
	"context"
	"io"

	appErr "pmcharness/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the subset of object storage the archiver needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

// MinIOStore implements ObjectStore using MinIO S3-compatible APIs.
type MinIOStore struct {
	core *minio.Core
}

func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, appErr.New(appErr.InvalidConfig).WithMessage("archive endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, appErr.New(appErr.InvalidConfig).WithMessage("archive accessKey and secretKey are required")
	}
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidConfig, "create minio core failed")
	}
	return &MinIOStore{core: core}, nil
}

func (s *MinIOStore) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if objectKey == "" {
		return appErr.New(appErr.InternalError).WithMessage("objectKey is required")
	}
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	if _, err := s.core.PutObject(ctx, bucket, objectKey, reader, sizeBytes, "", "", opts); err != nil {
		return appErr.Wrapf(err, appErr.ResultWrite, "minio put object failed")
	}
	return nil
}

func (s *MinIOStore) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	info, err := s.core.StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return ObjectStat{}, appErr.Wrapf(err, appErr.ResultWrite, "minio stat object failed")
	}
	return ObjectStat{
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}, nil
}
