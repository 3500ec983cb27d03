// Package minio provides a BlobStore backed by a MinIO server.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// DefaultPageSize bounds how many keys ListObjects returns per page.
const DefaultPageSize = 1000

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PageSize  int
}

// API is the subset of *minio.Client the store uses.
type API interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo
}

// getFunc opens an object for reading. *minio.Object defers errors to the
// first Read, so callers must treat read errors like open errors.
type getFunc func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

var _ API = (*miniogo.Client)(nil)

// BlobStore reads and writes objects in one MinIO bucket.
type BlobStore struct {
	client   API
	get      getFunc
	bucket   string
	pageSize int
}

// Open connects to MinIO and creates the bucket when it does not exist.
func Open(ctx context.Context, cfg Config) (*BlobStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	get := func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
		return client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	}
	store, err := newStore(client, get, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(client API, get getFunc, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &BlobStore{client: client, get: get, bucket: cfg.Bucket, pageSize: pageSize}, nil
}

func (s *BlobStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutObject uploads data and returns an s3:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to buffer data: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, path), nil
}

// GetObject downloads an object.
func (s *BlobStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.get(ctx, s.bucket, path)
	if err != nil {
		return nil, s.wrapGetErr(path, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapGetErr(path, err)
	}
	return data, nil
}

func (s *BlobStore) wrapGetErr(path string, err error) error {
	if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("get %s: %w", path, pipeline.ErrObjectNotFound)
	}
	return fmt.Errorf("get %s: %w", path, err)
}

// ListObjects returns up to one page of keys after pageToken. The token is
// the last key of the previous page, passed to MinIO as StartAfter.
func (s *BlobStore) ListObjects(ctx context.Context, prefix string, pageToken string) (pipeline.ObjectPage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: pageToken,
		MaxKeys:    s.pageSize,
	})

	var page pipeline.ObjectPage
	for obj := range objects {
		if obj.Err != nil {
			return pipeline.ObjectPage{}, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if len(page.Keys) == s.pageSize {
			// One key past a full page proves there is more to list.
			page.NextPageToken = page.Keys[len(page.Keys)-1]
			break
		}
		page.Keys = append(page.Keys, obj.Key)
	}
	return page, nil
}
