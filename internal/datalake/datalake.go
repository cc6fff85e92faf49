// Package datalake uploads finished bundles to an S3-compatible object
// store. Grounded on rishianshu-Nucleus's platform/ucl-core connector/minio
// package (S3Client: endpoint/credential wiring, PutObject semantics), cut
// down to the one operation the pipeline needs.
package datalake

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader pushes a finished bundle archive to durable object storage.
// environment and dataSource are passed through so an implementation can
// encode them into the object key or bucket layout, matching the
// original's upload(env, data_source, file_path) interface.
type Uploader interface {
	Upload(ctx context.Context, environment, dataSource, localPath, objectKey string) error
}

// Config is the subset of connection details the pipeline needs to reach a
// data lake bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client is the concrete minio-go-backed Uploader.
type Client struct {
	client *minio.Client
	bucket string
}

// New creates a Client from cfg. The bucket is not created here; callers
// are expected to point at a bucket that already exists.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("datalake: endpoint and bucket are required")
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{client: c, bucket: cfg.Bucket}, nil
}

// Upload streams localPath's contents to objectKey in the configured
// bucket. environment and dataSource are not otherwise used by this
// client; the object key is expected to already encode whatever layout
// the caller wants.
func (c *Client) Upload(ctx context.Context, environment, dataSource, localPath, objectKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = c.client.PutObject(ctx, c.bucket, objectKey, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", localPath, c.bucket, objectKey, err)
	}
	return nil
}

// NoopUploader is used when upload_to_datalake is disabled; it does
// nothing, letting the pipeline's upload step be unconditional code that
// simply calls whichever Uploader the config selected.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, string, string, string) error { return nil }
