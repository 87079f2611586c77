package minio

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

var ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "export artifact not found")

// ArtifactInfo describes one stored export artifact.
type ArtifactInfo struct {
	ObjectName   string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ArtifactStore keeps generated exports in the configured bucket. It
// satisfies the application layer's ObjectStore contract.
type ArtifactStore struct {
	client *Client
	logger logging.Logger
}

func NewArtifactStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{client: client, logger: log}
}

// Put uploads an artifact and returns its download location. When presign
// expiry is configured the location is a time-limited URL, otherwise the
// bucket-relative object path.
func (s *ArtifactStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	if objectName == "" {
		return "", errors.New(errors.ErrCodeValidation, "object name is required")
	}

	info, err := s.client.API().PutObject(ctx, s.client.Bucket(), objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to upload export artifact")
	}
	s.logger.Debug("export artifact stored",
		logging.String("object", info.Key),
		logging.Int64("size", info.Size),
	)

	if s.client.cfg.PresignExpiry > 0 {
		return s.PresignedURL(ctx, objectName)
	}
	return s.client.Bucket() + "/" + objectName, nil
}

// Fetch streams an artifact's bytes to w.
func (s *ArtifactStore) Fetch(ctx context.Context, objectName string, w io.Writer) error {
	obj, err := s.client.API().GetObject(ctx, s.client.Bucket(), objectName, minio.GetObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to open export artifact")
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrArtifactNotFound
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to read export artifact")
	}
	return nil
}

// Stat returns an artifact's metadata, or ErrArtifactNotFound.
func (s *ArtifactStore) Stat(ctx context.Context, objectName string) (*ArtifactInfo, error) {
	info, err := s.client.API().StatObject(ctx, s.client.Bucket(), objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to stat export artifact")
	}
	return &ArtifactInfo{
		ObjectName:   info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Delete removes an artifact. Deleting a missing object is not an error.
func (s *ArtifactStore) Delete(ctx context.Context, objectName string) error {
	err := s.client.API().RemoveObject(ctx, s.client.Bucket(), objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete export artifact")
	}
	return nil
}

// List returns artifacts under prefix, newest first.
func (s *ArtifactStore) List(ctx context.Context, prefix string) ([]*ArtifactInfo, error) {
	ch := s.client.API().ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var out []*ArtifactInfo
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeInternal, "failed to list export artifacts")
		}
		out = append(out, &ArtifactInfo{
			ObjectName:   obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// PresignedURL returns a time-limited download link for an artifact.
func (s *ArtifactStore) PresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := s.client.cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	u, err := s.client.API().PresignedGetObject(ctx, s.client.Bucket(), objectName, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to presign artifact URL")
	}
	return u.String(), nil
}
