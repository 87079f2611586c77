// Package minio stores export artifacts in an S3-compatible object store.
// The engine keeps a single bucket for generated CSV exports and hands out
// presigned download links so the API never proxies artifact bytes itself.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/minegov/royalty-engine/internal/config"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// artifactRetentionDays bounds how long generated exports stay around
// before the bucket lifecycle reaps them.
const artifactRetentionDays = 30

// ObjectAPI is the slice of the minio-go client the store uses.
type ObjectAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client wraps the minio-go client with the engine's bucket bootstrap.
type Client struct {
	api    ObjectAPI
	cfg    config.MinIOConfig
	logger logging.Logger
}

// NewClient connects to the object store, verifies reachability, and
// makes sure the export bucket exists with its retention rule applied.
func NewClient(cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create object storage client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := &Client{api: api, cfg: cfg, logger: log}
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to object storage")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("object storage connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL),
	)
	return c, nil
}

// NewClientWithAPI wires a client around an existing API implementation.
// Used by tests.
func NewClientWithAPI(api ObjectAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	return &Client{api: api, cfg: cfg, logger: log}
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check export bucket")
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, fmt.Sprintf("failed to create bucket %s", c.cfg.Bucket))
		}
		c.logger.Info("created export bucket", logging.String("bucket", c.cfg.Bucket))
	}

	retention := lifecycle.NewConfiguration()
	retention.Rules = []lifecycle.Rule{
		{
			ID:     "export-artifact-cleanup",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(artifactRetentionDays),
			},
		},
	}
	if err := c.api.SetBucketLifecycle(ctx, c.cfg.Bucket, retention); err != nil {
		// Lifecycle support is optional on some S3 backends.
		c.logger.Warn("failed to set export bucket retention", logging.Err(err))
	}
	return nil
}

// API exposes the underlying object store API.
func (c *Client) API() ObjectAPI {
	return c.api
}

// Bucket returns the export bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// HealthStatus reports object storage reachability for the health endpoint.
type HealthStatus struct {
	Healthy      bool
	Latency      time.Duration
	BucketExists bool
	Error        string
}

func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	_, err := c.api.ListBuckets(ctx)
	status := &HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status
	}

	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	status.BucketExists = exists
	if err != nil {
		status.Healthy = false
		status.Error = err.Error()
	} else if !exists {
		status.Healthy = false
		status.Error = fmt.Sprintf("bucket %s missing", c.cfg.Bucket)
	}
	return status
}
