// Package storage selects the object-store backend the pipeline reads and
// writes. Each backend lives in its own subpackage; New wires the one named
// by storage.provider.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/config"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/storage/gcs"
	"github.com/JakeFAU/lakeingest/internal/storage/local"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
	"github.com/JakeFAU/lakeingest/internal/storage/minio"
	"github.com/JakeFAU/lakeingest/internal/storage/s3"
)

// New builds the configured object store. The returned close function is
// always non-nil.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (pipeline.ObjectStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case config.ProviderMemory:
		return memory.NewBlobStore(memory.WithPageSize(cfg.ListPageSize)), noop, nil
	case config.ProviderLocal:
		localCfg := cfg.Local
		localCfg.PageSize = cfg.ListPageSize
		store, err := local.New(localCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("local storage: %w", err)
		}
		return store, noop, nil
	case config.ProviderGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, PageSize: cfg.ListPageSize}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("gcs storage: %w", err)
		}
		return store, store.Close, nil
	case config.ProviderS3:
		store, err := s3.Open(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PageSize:        cfg.ListPageSize,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("s3 storage: %w", err)
		}
		return store, noop, nil
	case config.ProviderMinio:
		store, err := minio.Open(ctx, minio.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Bucket:    cfg.Bucket,
			PageSize:  cfg.ListPageSize,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("minio storage: %w", err)
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
