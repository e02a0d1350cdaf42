// Package s3 stores archived checkpoints in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("graphs/social/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	err = db.Archive(ctx, store)
//
// WithEndpoint points the store at S3-compatible services such as
// LocalStack.
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums for large data files
//   - Automatic pagination for listing
//   - DDBCommitStore: a DynamoDB table makes CURRENT updates
//     compare-and-swap, so concurrent archivers never lose a checkpoint
package s3
