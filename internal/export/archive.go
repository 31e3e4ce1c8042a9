package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores captured keepsakes and hands out download links.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ArchiveConfig locates an S3-compatible bucket.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// objectStore is the part of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// MinioArchive keeps keepsakes in an S3-compatible bucket.
type MinioArchive struct {
	client  objectStore
	bucket  string
	linkTTL time.Duration
}

// NewMinioArchive connects to the bucket and creates it when missing.
func NewMinioArchive(ctx context.Context, cfg ArchiveConfig) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return newMinioArchive(ctx, client, cfg)
}

func newMinioArchive(ctx context.Context, client objectStore, cfg ArchiveConfig) (*MinioArchive, error) {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	linkTTL := cfg.LinkTTL
	if linkTTL <= 0 {
		linkTTL = 24 * time.Hour
	}
	return &MinioArchive{client: client, bucket: cfg.Bucket, linkTTL: linkTTL}, nil
}

func (a *MinioArchive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload keepsake: %w", err)
	}
	link, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.linkTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign keepsake: %w", err)
	}
	return link.String(), nil
}
