package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"garagewatch/internal/config"
	"garagewatch/internal/ingest"
	"garagewatch/internal/logging"
	"garagewatch/internal/metadata"
	"garagewatch/internal/notifications"
	"garagewatch/internal/pipeline"
	"garagewatch/internal/services"
	"garagewatch/internal/services/camera"
	"garagewatch/internal/services/discord"
	"garagewatch/internal/services/labelstudio"
	"garagewatch/internal/storage"
)

// ErrAlreadyRunning is returned when another process holds the run lock.
var ErrAlreadyRunning = errors.New("another collection run is already in progress")

// Mode selects the upstream source.
type Mode string

const (
	ModeHistory Mode = "history"
	ModeLive    Mode = "live"
)

// Syncer triggers downstream imports after a run.
type Syncer interface {
	SyncAll(ctx context.Context) (labelstudio.SyncResult, error)
}

// Report summarises a finished run.
type Report struct {
	RunID       string
	Mode        Mode
	Location    string
	Producer    ingest.Result
	Pipeline    pipeline.Stats
	Stuck       []int
	Interrupted bool
	Sync        *labelstudio.SyncResult
	Started     time.Time
	Duration    time.Duration
}

// Summary converts the report to the notification payload.
func (r Report) Summary() notifications.RunSummary {
	return notifications.RunSummary{
		Mode:         string(r.Mode),
		Seen:         r.Producer.Seen,
		Inserted:     r.Producer.Inserted,
		Duplicates:   r.Producer.Duplicates,
		Uploaded:     r.Pipeline.Uploaded,
		FetchFailed:  r.Pipeline.FetchFailed,
		UploadFailed: r.Pipeline.UploadFailed,
		Duration:     r.Duration,
	}
}

// Option customises a Collector.
type Option func(*Collector)

// WithSource replaces the mode's default source.
func WithSource(src ingest.Source) Option {
	return func(c *Collector) { c.source = src }
}

// WithUploader replaces the configured storage sink.
func WithUploader(u pipeline.Uploader) Option {
	return func(c *Collector) { c.uploader = u }
}

// WithNotifier replaces the configured notification service.
func WithNotifier(n notifications.Service) Option {
	return func(c *Collector) { c.notifier = n }
}

// WithSyncer replaces the configured Label Studio client.
func WithSyncer(s Syncer) Option {
	return func(c *Collector) { c.syncer = s }
}

// Collector runs collection passes against one configuration.
type Collector struct {
	cfg    *config.Config
	logger *slog.Logger

	source   ingest.Source
	uploader pipeline.Uploader
	notifier notifications.Service
	syncer   Syncer
}

// New constructs a Collector.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Collector {
	c := &Collector{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notifications.NewService(cfg)
	}
	if c.syncer == nil {
		if client := labelstudio.NewConfiguredClient(cfg, logger); client != nil {
			c.syncer = client
		}
	}
	return c
}

// Run executes one collection pass in mode. Interrupting ctx stops the
// producer; queued downloads are still drained before Run returns.
func (c *Collector) Run(ctx context.Context, mode Mode) (report Report, err error) {
	report = Report{RunID: uuid.NewString(), Mode: mode, Started: time.Now()}
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, c.logger)

	defer func() {
		report.Duration = time.Since(report.Started)
		// Notifications outlive an interrupted run context.
		notifyCtx := context.WithoutCancel(ctx)
		if err != nil {
			if notifyErr := c.notifier.NotifyError(notifyCtx, err, string(mode)+" collection"); notifyErr != nil {
				logger.Debug("error notification failed", logging.Error(notifyErr))
			}
			return
		}
		if notifyErr := c.notifier.NotifyRunCompleted(notifyCtx, report.Summary()); notifyErr != nil {
			logging.WarnWithContext(logger, "run notification failed", "notify_failed",
				logging.Error(notifyErr),
				logging.String(logging.FieldImpact, "no push summary for this run"),
			)
		}
	}()

	if err := c.cfg.EnsureDirectories(); err != nil {
		return report, err
	}
	lock := flock.New(c.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return report, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return report, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, c.cfg.LockPath())
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	source, closeSource, err := c.openSource(ctx, mode)
	if err != nil {
		return report, err
	}
	defer closeSource()

	store, err := metadata.Open(c.cfg)
	if err != nil {
		return report, fmt.Errorf("open metadata store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close metadata store: %w", closeErr))
		}
	}()

	uploader, location, closeSink, err := c.openSink()
	if err != nil {
		return report, err
	}
	defer closeSink()
	report.Location = location

	logger.Info("collection run started",
		logging.String("mode", string(mode)),
		logging.String("metadata", store.Path()),
		logging.String("storage", location),
		logging.Int("workers", c.cfg.Pipeline.Workers),
	)

	queue := pipeline.NewQueue(c.cfg.Pipeline.QueueCapacity)
	pool := pipeline.NewPool(queue, uploader, pipeline.Options{
		Workers:        c.cfg.Pipeline.Workers,
		GetTimeout:     c.cfg.GetTimeout(),
		FetchTimeout:   c.cfg.FetchTimeout(),
		MaxObjectBytes: c.cfg.Pipeline.MaxObjectBytes,
		UserAgent:      c.cfg.Pipeline.UserAgent,
		Logger:         c.logger,
	})
	// Workers keep draining after an interrupt; Shutdown cancels them.
	workerCtx := context.WithoutCancel(ctx)
	pool.Start(workerCtx)

	producer := ingest.NewProducer(source, queue, store, ingest.Options{
		CommitInterval: c.cfg.Ingest.CommitInterval,
		Logger:         c.logger,
	})
	res, prodErr := producer.Run(ctx)
	report.Producer = res
	if prodErr != nil && ctx.Err() != nil && errors.Is(prodErr, ctx.Err()) {
		report.Interrupted = true
		logging.WarnWithContext(logger, "collection interrupted; draining queued downloads", "run_interrupted",
			logging.Int("enqueued", res.Enqueued),
			logging.String(logging.FieldErrorHint, "rerun to resume after the last stored item"),
			logging.String(logging.FieldImpact, "remaining source items not collected"),
		)
		prodErr = nil
	}

	stuck, shutdownErr := pool.Shutdown(workerCtx, c.cfg.ShutdownTimeout())
	report.Pipeline = pool.Stats()
	report.Stuck = stuck
	if prodErr != nil || shutdownErr != nil {
		return report, errors.Join(prodErr, shutdownErr)
	}

	if mode == ModeHistory && c.syncer != nil && !report.Interrupted {
		syncRes, syncErr := c.syncer.SyncAll(workerCtx)
		if syncErr != nil {
			logging.WarnWithContext(logger, "label studio sync failed", "labelstudio_sync_failed",
				logging.Error(syncErr),
				logging.String(logging.FieldErrorHint, services.Hint(syncErr)),
				logging.String(logging.FieldImpact, "new images not imported"),
			)
		} else {
			report.Sync = &syncRes
		}
	}

	report.Duration = time.Since(report.Started)
	logger.Info("collection run finished",
		logging.String("mode", string(mode)),
		logging.Int64("resumed_after", res.StartAfter),
		logging.Int64("last_item_id", res.LastItemID),
		logging.Int("seen", res.Seen),
		logging.Int("inserted", res.Inserted),
		logging.Int("duplicates", res.Duplicates),
		logging.Int("skipped", res.Skipped),
		logging.Int64("uploaded", report.Pipeline.Uploaded),
		logging.Int64("fetch_failed", report.Pipeline.FetchFailed),
		logging.Int64("upload_failed", report.Pipeline.UploadFailed),
		logging.Int64("dead_workers", report.Pipeline.DeadWorkers),
		logging.Int("stuck_workers", len(stuck)),
		logging.Bool("interrupted", report.Interrupted),
		logging.Duration("duration", report.Duration.Round(time.Millisecond)),
	)
	return report, nil
}

func (c *Collector) openSource(ctx context.Context, mode Mode) (ingest.Source, func(), error) {
	noop := func() {}
	if c.source != nil {
		return c.source, noop, nil
	}
	switch mode {
	case ModeHistory:
		if err := c.cfg.ValidateHistory(); err != nil {
			return nil, noop, err
		}
		src, err := discord.NewSource(c.cfg, c.logger)
		if err != nil {
			return nil, noop, err
		}
		return src, func() { _ = src.Close() }, nil
	case ModeLive:
		if err := c.cfg.ValidateLive(); err != nil {
			return nil, noop, err
		}
		src := camera.NewSource(c.cfg, c.logger)
		if err := src.Check(ctx); err != nil {
			return nil, noop, fmt.Errorf("camera not reachable: %w", err)
		}
		return src, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown collection mode %q", mode)
	}
}

func (c *Collector) openSink() (pipeline.Uploader, string, func(), error) {
	if c.uploader != nil {
		return c.uploader, "custom", func() {}, nil
	}
	sink, err := storage.New(c.cfg, c.logger)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open storage: %w", err)
	}
	return sink, sink.Location(), func() { _ = sink.Close() }, nil
}
