package main

import (
	"context"

	"github.com/hupe1980/graphstore/blobstore"
	"github.com/hupe1980/graphstore/blobstore/minio"
	"github.com/hupe1980/graphstore/blobstore/s3"
)

// openArchiveStore connects to the configured archive backend.
func openArchiveStore(ctx context.Context, cfg *ArchiveConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		var opts []minio.Option
		if cfg.Prefix != "" {
			opts = append(opts, minio.WithPrefix(cfg.Prefix))
		}
		if cfg.PartSize > 0 {
			opts = append(opts, minio.WithPartSize(uint64(cfg.PartSize)))
		}
		return minio.Dial(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket, cfg.Secure, opts...)
	case "s3":
		opts := []s3.Option{s3.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.Endpoint))
		}
		if cfg.PartSize > 0 {
			opts = append(opts, s3.WithUploadOptions(func(u *s3.UploadOptions) { u.PartSize = cfg.PartSize }))
		}
		return s3.New(ctx, cfg.Bucket, opts...)
	default:
		return blobstore.NewLocalStore(cfg.Dir), nil
	}
}
