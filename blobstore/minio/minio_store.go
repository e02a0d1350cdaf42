package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/graphstore/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentType = "application/octet-stream"

// Store keeps archives in a bucket of a MinIO or S3-compatible server.
type Store struct {
	client   *minio.Client
	bucket   string
	prefix   string
	partSize uint64
}

// Option configures a Store.
type Option func(s *Store)

// WithPrefix places every archive below prefix, e.g. "graphs/social".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, "/") }
}

// WithPartSize sets the multipart part size of archived data files.
func WithPartSize(size uint64) Option {
	return func(s *Store) { s.partSize = size }
}

// NewStore wraps an existing client.
func NewStore(client *minio.Client, bucket string, optFns ...Option) *Store {
	s := &Store{client: client, bucket: bucket, partSize: 16 << 20}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Dial connects to endpoint with static credentials and creates the bucket
// when it does not exist yet.
func Dial(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool, optFns ...Option) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return NewStore(client, bucket, optFns...), nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Store) name(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// Open stats the object and returns a blob that reads it by range.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	obj := object{client: s.client, bucket: s.bucket, key: s.key(name)}
	info, err := s.client.StatObject(ctx, obj.bucket, obj.key, minio.StatObjectOptions{})
	if isNotFound(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	obj.size = info.Size
	return &obj, nil
}

// Put uploads data in one request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Create streams a file of unknown size. The object appears on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	r, w := io.Pipe()
	u := &upload{w: w, result: make(chan error, 1)}
	opts := minio.PutObjectOptions{ContentType: contentType, PartSize: s.partSize}
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, -1, opts)
		_ = r.CloseWithError(err)
		u.result <- err
	}()
	return u, nil
}

// Delete removes an object. Missing objects are ignored.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns the sorted names below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	opts := minio.ListObjectsOptions{Prefix: s.key(prefix), Recursive: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, info.Err
		}
		if name := s.name(info.Key); name != "" && !strings.HasSuffix(name, "/") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// object reads a stored file with ranged GETs.
type object struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (o *object) Size() int64  { return o.size }
func (o *object) Close() error { return nil }

// get fetches [off, end).
func (o *object) get(ctx context.Context, off, end int64) (*minio.Object, error) {
	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, end-1); err != nil {
		return nil, err
	}
	return o.client.GetObject(ctx, o.bucket, o.key, opts)
}

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off >= o.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), o.size)
	body, err := o.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.ReadFull(body, p[:end-off])
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= o.size {
		return nil, io.EOF
	}
	if length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return o.get(ctx, off, min(off+length, o.size))
}

var errAborted = errors.New("minio: upload aborted")

// upload feeds a streaming PutObject through a pipe.
type upload struct {
	w      *io.PipeWriter
	result chan error

	once sync.Once
	err  error
}

func (u *upload) Write(p []byte) (int, error) { return u.w.Write(p) }

func (u *upload) finish(cause error) error {
	u.once.Do(func() {
		if cause != nil {
			_ = u.w.CloseWithError(cause)
		} else if err := u.w.Close(); err != nil {
			u.err = err
			return
		}
		u.err = <-u.result
	})
	return u.err
}

// Close completes the object.
func (u *upload) Close() error { return u.finish(nil) }

// Abort drops the upload before the object is created.
func (u *upload) Abort() error {
	_ = u.finish(errAborted)
	return nil
}

func (u *upload) Sync() error { return nil }
