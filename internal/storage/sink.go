package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"gocloud.dev/blob"

	"garagewatch/internal/config"
	"garagewatch/internal/logging"
)

type backend interface {
	ensure(ctx context.Context) error
	put(ctx context.Context, key string, data []byte, contentType string) error
	describe() string
	close() error
}

// Stats counts sink activity since construction.
type Stats struct {
	Uploaded int64
	Failed   int64
	Bytes    int64
}

// Sink uploads objects to a single bucket. It is safe for concurrent use.
type Sink struct {
	backend backend
	logger  *slog.Logger

	mu    sync.Mutex
	ready bool

	uploaded atomic.Int64
	failed   atomic.Int64
	bytes    atomic.Int64
}

// New builds the sink selected by cfg.Storage.System.
func New(cfg *config.Config, logger *slog.Logger) (*Sink, error) {
	var (
		b   backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.System)) {
	case config.StorageMinIO:
		b, err = newMinIOBackend(cfg.MinIO)
		if err != nil {
			return nil, err
		}
	case config.StorageLocal:
		b = newLocalBackend(cfg.Storage.LocalDir)
	case config.StorageBlob:
		b = newURLBackend(cfg.Storage.BlobURL)
	default:
		return nil, fmt.Errorf("storage: unsupported system %q", cfg.Storage.System)
	}
	return newSink(b, logger), nil
}

// NewBucketSink wraps an opened gocloud bucket.
func NewBucketSink(bucket *blob.Bucket, label string, logger *slog.Logger) *Sink {
	return newSink(newBucketBackend(bucket, label), logger)
}

func newSink(b backend, logger *slog.Logger) *Sink {
	return &Sink{
		backend: b,
		logger:  logging.NewComponentLogger(logger, "storage"),
	}
}

// Location describes the destination for log and summary output.
func (s *Sink) Location() string {
	return s.backend.describe()
}

// Upload stores data under key. An empty contentType is derived from the key
// extension. It reports whether the object was written; failures are logged.
func (s *Sink) Upload(ctx context.Context, data []byte, key, contentType string) bool {
	if contentType == "" {
		contentType = ContentType(key)
	}
	if err := s.ensureReady(ctx); err != nil {
		s.failed.Add(1)
		logging.WarnWithContext(s.logger, "object store unavailable", "storage_unavailable",
			logging.String("key", key),
			logging.String("location", s.backend.describe()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check object store endpoint and credentials"),
			logging.String(logging.FieldImpact, "image not stored; bucket check retried on next upload"),
		)
		return false
	}
	if err := s.backend.put(ctx, key, data, contentType); err != nil {
		s.failed.Add(1)
		logging.WarnWithContext(s.logger, "object upload failed", "storage_upload_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "image not stored"),
		)
		return false
	}
	s.uploaded.Add(1)
	s.bytes.Add(int64(len(data)))
	s.logger.Debug("object uploaded",
		logging.String("key", key),
		logging.String("content_type", contentType),
		logging.Int("bytes", len(data)),
	)
	return true
}

func (s *Sink) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.backend.ensure(ctx); err != nil {
		return err
	}
	s.ready = true
	s.logger.Info("object store ready", logging.String("location", s.backend.describe()))
	return nil
}

// Stats returns a snapshot of upload counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Uploaded: s.uploaded.Load(),
		Failed:   s.failed.Load(),
		Bytes:    s.bytes.Load(),
	}
}

// Close releases backend resources.
func (s *Sink) Close() error {
	return s.backend.close()
}
