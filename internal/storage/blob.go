package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// blobBackend writes through a gocloud.dev bucket. The bucket is opened on the
// first ensure call so a missing directory or unreachable endpoint surfaces as
// a retryable upload failure rather than a startup error.
type blobBackend struct {
	open  func(ctx context.Context) (*blob.Bucket, error)
	label string

	mu     sync.Mutex
	bucket *blob.Bucket
}

func newURLBackend(bucketURL string) *blobBackend {
	return &blobBackend{
		label: bucketURL,
		open: func(ctx context.Context) (*blob.Bucket, error) {
			return blob.OpenBucket(ctx, bucketURL)
		},
	}
}

func newLocalBackend(dir string) *blobBackend {
	return &blobBackend{
		label: "file://" + filepath.ToSlash(dir),
		open: func(context.Context) (*blob.Bucket, error) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create output directory: %w", err)
			}
			return fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		},
	}
}

// newBucketBackend wraps an already opened bucket.
func newBucketBackend(bucket *blob.Bucket, label string) *blobBackend {
	return &blobBackend{label: label, bucket: bucket}
}

func (b *blobBackend) ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bucket == nil {
		bucket, err := b.open(ctx)
		if err != nil {
			return fmt.Errorf("open bucket %s: %w", b.label, err)
		}
		b.bucket = bucket
	}
	ok, err := b.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.label, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s is not accessible", b.label)
	}
	return nil
}

func (b *blobBackend) put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	bucket := b.bucket
	b.mu.Unlock()
	if bucket == nil {
		return errors.New("bucket not open")
	}
	return bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
}

func (b *blobBackend) describe() string { return b.label }

func (b *blobBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bucket == nil {
		return nil
	}
	err := b.bucket.Close()
	b.bucket = nil
	return err
}
