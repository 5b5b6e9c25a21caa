package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"garagewatch/internal/logging"
	"garagewatch/internal/storage"
)

// Uploader receives fetched payloads. Implementations report failure through
// the return value instead of an error.
type Uploader interface {
	Upload(ctx context.Context, data []byte, key, contentType string) bool
}

// Options configures a Pool.
type Options struct {
	Workers        int
	GetTimeout     time.Duration
	FetchTimeout   time.Duration
	MaxObjectBytes int64
	UserAgent      string
	Logger         *slog.Logger
	// NewClient overrides the per-worker HTTP client constructor.
	NewClient func() *http.Client
}

const (
	defaultWorkers      = 10
	defaultGetTimeout   = 10 * time.Second
	defaultFetchTimeout = 60 * time.Second
)

// Pool runs a fixed set of download workers against a Queue.
type Pool struct {
	queue  *Queue
	sink   Uploader
	opts   Options
	logger *slog.Logger

	counters counters
	alive    atomic.Int64

	mu       sync.Mutex
	started  bool
	done     []chan struct{}
	cancel   context.CancelFunc
	stuck    []int
	drained  chan struct{}
	shutdown bool
}

// NewPool builds a pool. Missing options receive defaults; the worker count
// never exceeds the queue capacity so every shutdown marker fits.
func NewPool(queue *Queue, sink Uploader, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Workers > queue.Cap() {
		opts.Workers = queue.Cap()
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = defaultGetTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.NewClient == nil {
		timeout := opts.FetchTimeout
		opts.NewClient = func() *http.Client { return newWorkerClient(timeout) }
	}
	return &Pool{
		queue:   queue,
		sink:    sink,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "pipeline"),
		drained: make(chan struct{}),
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.opts.Workers }

// Alive returns the number of workers still running.
func (p *Pool) Alive() int { return int(p.alive.Load()) }

// Start launches the workers. Workers stop when ctx is cancelled, when they
// receive a shutdown marker, or after recovering from a panic.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make([]chan struct{}, p.opts.Workers)
	p.alive.Store(int64(p.opts.Workers))
	for i := range p.done {
		p.done[i] = make(chan struct{})
		go p.runWorker(workerCtx, i+1, p.done[i])
	}
	p.logger.Info("worker pool started",
		logging.Int("workers", p.opts.Workers),
		logging.Int("queue_capacity", p.queue.Cap()),
	)
}

func (p *Pool) runWorker(ctx context.Context, id int, done chan struct{}) {
	ctx = logging.WithWorkerID(ctx, id)
	logger := logging.WithContext(ctx, p.logger)
	client := p.opts.NewClient()
	defer func() {
		client.CloseIdleConnections()
		if p.alive.Add(-1) == 0 {
			// No consumers remain; unblock producers and coordinators.
			p.queue.Close()
			close(p.drained)
		}
		close(done)
	}()

	logger.Debug("worker started")
	for {
		task, err := p.queue.Get(ctx, p.opts.GetTimeout)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			logger.Debug("worker stopping", logging.String("reason", err.Error()))
			return
		}
		if task.IsShutdown() {
			logger.Debug("worker received shutdown marker")
			return
		}
		if !p.process(ctx, logger, client, task.Item) {
			p.counters.dead.Add(1)
			return
		}
	}
}

// process handles one item and always marks it done. It returns false when
// the handler panicked and the worker must exit.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, client *http.Client, item WorkItem) (ok bool) {
	defer p.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			p.counters.record(OutcomeCrashed, 0)
			logging.ErrorWithContext(logger, "worker crashed while handling item", "worker_panic",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("locator", item.Locator),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "worker exits; remaining workers continue"),
			)
			ok = false
		}
	}()

	outcome, size := p.handle(ctx, logger, client, item)
	p.counters.record(outcome, size)
	return true
}

func (p *Pool) handle(ctx context.Context, logger *slog.Logger, client *http.Client, item WorkItem) (Outcome, int) {
	logger = logger.With(logging.Int64(logging.FieldItemID, item.ID))

	data, err := fetch(ctx, client, item.Locator, p.opts.UserAgent, p.opts.MaxObjectBytes)
	if err != nil {
		attrs := []logging.Attr{
			logging.String("locator", item.Locator),
			logging.Error(err),
			logging.String(logging.FieldImpact, "image not stored"),
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			attrs = append(attrs,
				logging.Int("status", statusErr.Code),
				logging.String(logging.FieldErrorHint, "attachment may have expired or been deleted"),
			)
		}
		logging.WarnWithContext(logger, "image download failed", "fetch_failed", attrs...)
		return OutcomeFetchFailed, 0
	}

	key := storage.ObjectKey(item.ID, item.Locator)
	if !p.sink.Upload(ctx, data, key, storage.ContentType(key)) {
		return OutcomeUploadFailed, len(data)
	}
	logger.Debug("image stored", logging.String("key", key), logging.Int("bytes", len(data)))
	return OutcomeUploaded, len(data)
}

// Shutdown waits for the queued backlog, sends one shutdown marker per worker
// and waits for every worker under a single shared deadline. Workers that miss
// the deadline are logged, have their context cancelled and are abandoned;
// their ids are returned.
func (p *Pool) Shutdown(ctx context.Context, timeout time.Duration) ([]int, error) {
	p.mu.Lock()
	if !p.started || p.shutdown {
		stuck := append([]int(nil), p.stuck...)
		p.mu.Unlock()
		return stuck, nil
	}
	p.shutdown = true
	done := p.done
	p.mu.Unlock()

	if err := p.join(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("wait for queue: %w", err)
	}

	for range done {
		if p.Alive() == 0 {
			break
		}
		if err := p.queue.PutShutdown(ctx); err != nil {
			p.cancel()
			return nil, fmt.Errorf("send shutdown marker: %w", err)
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	var stuck []int
wait:
	for i, ch := range done {
		select {
		case <-ch:
		case <-deadline.C:
			for j := i; j < len(done); j++ {
				select {
				case <-done[j]:
				default:
					stuck = append(stuck, j+1)
				}
			}
			break wait
		}
	}

	if len(stuck) > 0 {
		logging.WarnWithContext(p.logger, "workers did not exit before shutdown deadline", "shutdown_timeout",
			logging.Any("worker_ids", stuck),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "a download or upload is hanging; check network and object store"),
			logging.String(logging.FieldImpact, "stuck workers abandoned"),
		)
	}
	p.cancel()

	p.mu.Lock()
	p.stuck = stuck
	p.mu.Unlock()

	stats := p.Stats()
	p.logger.Info("worker pool stopped",
		logging.Int64("processed", stats.Processed),
		logging.Int64("uploaded", stats.Uploaded),
		logging.Int64("fetch_failed", stats.FetchFailed),
		logging.Int64("upload_failed", stats.UploadFailed),
		logging.Int64("dead_workers", stats.DeadWorkers),
		logging.Int("stuck_workers", len(stuck)),
	)
	return stuck, nil
}

// join waits for the backlog. It gives up once every worker has exited, since
// nothing would ever mark the remaining items done.
func (p *Pool) join(ctx context.Context) error {
	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- p.queue.Join(joinCtx) }()

	select {
	case err := <-result:
		return err
	case <-p.drained:
		if remaining := p.queue.Unfinished(); remaining > 0 {
			logging.ErrorWithContext(p.logger, "all workers exited with items still queued", "pool_exhausted",
				logging.Int("remaining", remaining),
				logging.String(logging.FieldErrorHint, "inspect earlier worker_panic entries"),
			)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of outcome counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	stuck := len(p.stuck)
	p.mu.Unlock()
	return Stats{
		Processed:    p.counters.processed.Load(),
		Uploaded:     p.counters.uploaded.Load(),
		FetchFailed:  p.counters.fetchFailed.Load(),
		UploadFailed: p.counters.uploadFailed.Load(),
		Crashed:      p.counters.crashed.Load(),
		BytesFetched: p.counters.bytes.Load(),
		Workers:      p.opts.Workers,
		DeadWorkers:  p.counters.dead.Load(),
		StuckWorkers: stuck,
	}
}
