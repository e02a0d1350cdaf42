package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/graphstore/internal/hash"
)

// UploadOptions tunes how archived files are uploaded.
type UploadOptions struct {
	// PartSize is the size of one multipart part. Values below the S3
	// minimum of 5 MiB are raised to it.
	PartSize int64
	// Concurrency is the number of parts of one file in flight.
	Concurrency int
	// Checksum sends CRC32C checksums so S3 rejects corrupted parts.
	Checksum bool
}

func defaultUploadOptions() UploadOptions {
	return UploadOptions{
		PartSize:    16 << 20,
		Concurrency: 4,
		Checksum:    true,
	}
}

func (o UploadOptions) uploader(client Client) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = max(o.PartSize, manager.MinUploadPartSize)
		u.Concurrency = max(o.Concurrency, 1)
	})
}

// crc32cHeader encodes the checksum of data the way the
// x-amz-checksum-crc32c header expects it.
func crc32cHeader(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], hash.CRC32C(data))
	return base64.StdEncoding.EncodeToString(b[:])
}

var errUploadAborted = errors.New("s3: upload aborted")

// pipeUpload streams an archived file into a multipart upload. The manager
// aborts the upload when the pipe is closed with an error.
type pipeUpload struct {
	w      *io.PipeWriter
	result chan error

	mu   sync.Mutex
	done bool
	err  error
}

func startUpload(ctx context.Context, uploader *manager.Uploader, bucket, key string, checksum bool) *pipeUpload {
	r, w := io.Pipe()
	u := &pipeUpload{w: w, result: make(chan error, 1)}

	in := &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: r}
	if checksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	go func() {
		_, err := uploader.Upload(ctx, in)
		_ = r.CloseWithError(err)
		u.result <- err
	}()
	return u
}

func (u *pipeUpload) Write(p []byte) (int, error) { return u.w.Write(p) }

// end closes the pipe once and waits for the upload. A nil cause completes
// the object.
func (u *pipeUpload) end(cause error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return u.err
	}
	u.done = true
	if cause == nil {
		if u.err = u.w.Close(); u.err != nil {
			return u.err
		}
	} else {
		_ = u.w.CloseWithError(cause)
	}
	u.err = <-u.result
	return u.err
}

// Close completes the upload.
func (u *pipeUpload) Close() error { return u.end(nil) }

// Abort drops the upload. The object is never created.
func (u *pipeUpload) Abort() error {
	_ = u.end(errUploadAborted)
	return nil
}

func (u *pipeUpload) Sync() error { return nil }

// putObject writes small files such as manifests in one request.
func putObject(ctx context.Context, client Client, bucket, key string, data []byte, checksum bool) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if checksum {
		in.ChecksumCRC32C = aws.String(crc32cHeader(data))
	}
	_, err := client.PutObject(ctx, in)
	return err
}
