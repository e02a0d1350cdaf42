// Package minio stores archived checkpoints in MinIO and other
// S3-compatible services (Ceph, Garage, SeaweedFS) through the MinIO client.
//
// # Basic Usage
//
//	store, err := minio.Dial(ctx, "localhost:9000", "minioadmin", "minioadmin", "backups", false,
//	    minio.WithPrefix("graphs/social"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = db.Archive(ctx, store)
//
// Uploads stream through a pipe, so archiving a large data file never
// buffers it in memory. Set the part size with WithPartSize.
package minio
