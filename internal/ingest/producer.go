package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"garagewatch/internal/logging"
	"garagewatch/internal/metadata"
	"garagewatch/internal/pipeline"
)

// DefaultCommitInterval is the number of new rows between metadata commits.
const DefaultCommitInterval = 100

// Enqueuer accepts download work.
type Enqueuer interface {
	Put(ctx context.Context, item pipeline.WorkItem) error
}

// Recorder persists metadata rows.
type Recorder interface {
	Insert(ctx context.Context, rec metadata.Record) error
	Commit() error
	LastItemID(ctx context.Context) (int64, bool, error)
}

// Options configures a Producer.
type Options struct {
	CommitInterval int
	Logger         *slog.Logger
	// OnMessage, when set, observes every message after it was handled.
	OnMessage func(Message, Extraction, bool)
}

// Result summarises one producer run.
type Result struct {
	// StartAfter is the resumption cursor read from the store (0 when empty).
	StartAfter int64
	// LastItemID is the highest message id seen during the run.
	LastItemID int64
	Seen       int
	Skipped    int
	Inserted   int
	Duplicates int
	Enqueued   int
	Commits    int
}

// Producer drives a Source into the pipeline queue and the metadata store.
type Producer struct {
	source Source
	queue  Enqueuer
	store  Recorder
	opts   Options
	logger *slog.Logger
}

// NewProducer constructs a Producer.
func NewProducer(source Source, queue Enqueuer, store Recorder, opts Options) *Producer {
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = DefaultCommitInterval
	}
	return &Producer{
		source: source,
		queue:  queue,
		store:  store,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "ingest"),
	}
}

// Run resumes after the highest stored item id and processes the source
// until it is exhausted, ctx is cancelled or the queue rejects work. Pending
// metadata is committed before returning in every case.
func (p *Producer) Run(ctx context.Context) (res Result, err error) {
	logger := logging.WithContext(ctx, p.logger)

	last, ok, err := p.store.LastItemID(ctx)
	if err != nil {
		return res, fmt.Errorf("read resumption cursor: %w", err)
	}
	if ok {
		res.StartAfter = last
		res.LastItemID = last
		logger.Info("resuming after stored item", logging.Int64(logging.FieldItemID, last))
	} else {
		logger.Info("no stored items; starting from the beginning of the source")
	}

	defer func() {
		if commitErr := p.commit(&res); commitErr != nil {
			err = errors.Join(err, commitErr)
		}
	}()

	err = p.source.Messages(ctx, res.StartAfter, func(msg Message) error {
		return p.handle(ctx, logger, msg, &res)
	})
	if err != nil {
		return res, fmt.Errorf("iterate source: %w", err)
	}
	logger.Info("source exhausted",
		logging.Int("seen", res.Seen),
		logging.Int("inserted", res.Inserted),
		logging.Int("duplicates", res.Duplicates),
		logging.Int("skipped", res.Skipped),
		logging.Int("enqueued", res.Enqueued),
	)
	return res, nil
}

func (p *Producer) handle(ctx context.Context, logger *slog.Logger, msg Message, res *Result) error {
	res.Seen++
	if msg.ID > res.LastItemID {
		res.LastItemID = msg.ID
	}
	ex, ok := Extract(msg)
	if p.opts.OnMessage != nil {
		defer p.opts.OnMessage(msg, ex, ok)
	}
	if !ok {
		res.Skipped++
		logger.Debug("message has no image; skipping", logging.Int64(logging.FieldItemID, msg.ID))
		return nil
	}

	if err := p.queue.Put(ctx, pipeline.WorkItem{ID: msg.ID, Locator: ex.Locator}); err != nil {
		return fmt.Errorf("enqueue item %d: %w", msg.ID, err)
	}
	res.Enqueued++

	if err := p.store.Insert(ctx, ex.Record); err != nil {
		if errors.Is(err, metadata.ErrDuplicate) {
			res.Duplicates++
			logging.WarnWithContext(logger, "metadata row already exists", "metadata_duplicate",
				logging.Int64(logging.FieldItemID, msg.ID),
				logging.String(logging.FieldErrorHint, "item was ingested by an earlier run"),
				logging.String(logging.FieldImpact, "existing row kept; image re-uploaded"),
			)
			return nil
		}
		return fmt.Errorf("record item %d: %w", msg.ID, err)
	}
	res.Inserted++

	if res.Inserted%p.opts.CommitInterval == 0 {
		if err := p.commit(res); err != nil {
			return err
		}
		logger.Info("metadata committed",
			logging.Int("inserted", res.Inserted),
			logging.Int64(logging.FieldItemID, msg.ID),
		)
	}
	return nil
}

func (p *Producer) commit(res *Result) error {
	if err := p.store.Commit(); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	res.Commits++
	return nil
}
