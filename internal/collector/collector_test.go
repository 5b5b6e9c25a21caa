package collector_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"garagewatch/internal/collector"
	"garagewatch/internal/ingest"
	"garagewatch/internal/logging"
	"garagewatch/internal/notifications"
	"garagewatch/internal/services/labelstudio"
	"garagewatch/internal/testsupport"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notifications.RunSummary
	errs      []error
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, s notifications.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type countingSyncer struct {
	calls int
	err   error
}

func (s *countingSyncer) SyncAll(context.Context) (labelstudio.SyncResult, error) {
	s.calls++
	return labelstudio.SyncResult{Storages: 1, Synced: 1}, s.err
}

type channelHistory struct {
	messages []ingest.Message
	afters   []int64
}

func (h *channelHistory) Messages(ctx context.Context, after int64, fn func(ingest.Message) error) error {
	h.afters = append(h.afters, after)
	for _, msg := range h.messages {
		if msg.ID <= after {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func alert(srv *testsupport.ImageServer, id int64, name, label string) ingest.Message {
	return ingest.Message{ID: id, Embeds: []ingest.Embed{{
		Fields: []ingest.Field{
			{Name: "Status", Value: label},
			{Name: "Confidence", Value: "91.5%"},
		},
		ThumbnailURL: srv.URL(name),
	}}}
}

func TestRunHistoryStoresImagesAndMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := testsupport.NewImageServer(t)
	srv.Fail("4.png", http.StatusNotFound)

	history := &channelHistory{messages: []ingest.Message{
		alert(srv, 1, "1.png", "open"),
		alert(srv, 2, "2.jpg", "closed"),
		{ID: 3},
		alert(srv, 4, "4.png", "open"),
		alert(srv, 5, "5.webp", "closed"),
	}}
	notifier := &recordingNotifier{}
	syncer := &countingSyncer{}

	c := collector.New(cfg, logging.NewNop(),
		collector.WithSource(history),
		collector.WithNotifier(notifier),
		collector.WithSyncer(syncer),
	)
	report, err := c.Run(context.Background(), collector.ModeHistory)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Fatal("expected run id")
	}
	if report.Producer.Seen != 5 || report.Producer.Skipped != 1 || report.Producer.Inserted != 4 {
		t.Fatalf("unexpected producer result: %+v", report.Producer)
	}
	if report.Pipeline.Uploaded != 3 || report.Pipeline.FetchFailed != 1 {
		t.Fatalf("unexpected pipeline stats: %+v", report.Pipeline)
	}
	if len(report.Stuck) != 0 {
		t.Fatalf("expected no stuck workers, got %v", report.Stuck)
	}
	for _, key := range []string{"1.png", "2.jpg", "5.webp"} {
		data, err := os.ReadFile(filepath.Join(cfg.Storage.LocalDir, key))
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if string(data) != string(testsupport.Payload(key)) {
			t.Fatalf("object %s = %q", key, data)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.LocalDir, "4.png")); !os.IsNotExist(err) {
		t.Fatalf("failed fetch should not produce an object, stat err=%v", err)
	}

	if syncer.calls != 1 || report.Sync == nil || report.Sync.Synced != 1 {
		t.Fatalf("expected one label studio sync, calls=%d report=%+v", syncer.calls, report.Sync)
	}
	if len(notifier.summaries) != 1 || len(notifier.errs) != 0 {
		t.Fatalf("expected one completion notification, got %+v / %v", notifier.summaries, notifier.errs)
	}
	summary := notifier.summaries[0]
	if summary.Mode != "history" || summary.Inserted != 4 || summary.Failed() != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	store := testsupport.MustOpenStore(t, cfg)
	last, ok, err := store.LastItemID(context.Background())
	if err != nil || !ok || last != 5 {
		t.Fatalf("LastItemID = %d, %v, %v", last, ok, err)
	}
	rec, err := store.Get(context.Background(), 2)
	if err != nil || rec == nil {
		t.Fatalf("Get(2) = %v, %v", rec, err)
	}
	if rec.ClassificationLabel != "closed" || rec.Confidence == nil || *rec.Confidence != 91.5 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRunHistoryResumesAfterLastStoredItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := testsupport.NewImageServer(t)
	history := &channelHistory{messages: []ingest.Message{
		alert(srv, 10, "10.jpg", "open"),
		alert(srv, 11, "11.jpg", "open"),
	}}
	opts := []collector.Option{
		collector.WithSource(history),
		collector.WithNotifier(&recordingNotifier{}),
	}

	if _, err := collector.New(cfg, logging.NewNop(), opts...).Run(context.Background(), collector.ModeHistory); err != nil {
		t.Fatalf("first run: %v", err)
	}
	history.messages = append(history.messages, alert(srv, 12, "12.jpg", "closed"))

	report, err := collector.New(cfg, logging.NewNop(), opts...).Run(context.Background(), collector.ModeHistory)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(history.afters) != 2 || history.afters[0] != 0 || history.afters[1] != 11 {
		t.Fatalf("unexpected cursors: %v", history.afters)
	}
	if report.Producer.StartAfter != 11 || report.Producer.Inserted != 1 || report.Pipeline.Uploaded != 1 {
		t.Fatalf("unexpected resumed report: %+v / %+v", report.Producer, report.Pipeline)
	}
}

func TestRunFailsFastWhenLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	called := false
	source := ingest.SourceFunc(func(context.Context, int64, func(ingest.Message) error) error {
		called = true
		return nil
	})
	notifier := &recordingNotifier{}
	_, err = collector.New(cfg, logging.NewNop(),
		collector.WithSource(source),
		collector.WithNotifier(notifier),
	).Run(context.Background(), collector.ModeHistory)
	if !errors.Is(err, collector.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if called {
		t.Fatal("source should not be read without the lock")
	}
	if len(notifier.errs) != 1 {
		t.Fatalf("expected error notification, got %v", notifier.errs)
	}
}

func TestRunInterruptedKeepsCollectedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := testsupport.NewImageServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := ingest.SourceFunc(func(ctx context.Context, after int64, fn func(ingest.Message) error) error {
		for id := after + 1; id <= after+3; id++ {
			if err := fn(alert(srv, id, "frame.jpg", "open")); err != nil {
				return err
			}
		}
		cancel()
		return ctx.Err()
	})
	syncer := &countingSyncer{}
	report, err := collector.New(cfg, logging.NewNop(),
		collector.WithSource(source),
		collector.WithNotifier(&recordingNotifier{}),
		collector.WithSyncer(syncer),
	).Run(ctx, collector.ModeHistory)
	if err != nil {
		t.Fatalf("interrupted run should not fail: %v", err)
	}
	if !report.Interrupted {
		t.Fatal("expected interrupted report")
	}
	if report.Producer.Inserted != 3 || report.Pipeline.Uploaded != 3 {
		t.Fatalf("queued work should drain: %+v / %+v", report.Producer, report.Pipeline)
	}
	if syncer.calls != 0 {
		t.Fatal("sync should be skipped for interrupted runs")
	}

	store := testsupport.MustOpenStore(t, cfg)
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Rows != 3 {
		t.Fatalf("expected 3 committed rows, got %d", stats.Rows)
	}
}

func TestRunLiveSkipsLabelStudioSync(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryStorage())
	srv := testsupport.NewImageServer(t)
	source := ingest.SourceFunc(func(_ context.Context, after int64, fn func(ingest.Message) error) error {
		return fn(ingest.Message{ID: after + 1, Attachments: []ingest.Attachment{{URL: srv.URL("snap.jpg")}}})
	})
	syncer := &countingSyncer{}
	report, err := collector.New(cfg, logging.NewNop(),
		collector.WithSource(source),
		collector.WithNotifier(&recordingNotifier{}),
		collector.WithSyncer(syncer),
	).Run(context.Background(), collector.ModeLive)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Pipeline.Uploaded != 1 || report.Location != "mem://" {
		t.Fatalf("unexpected report: %+v location=%q", report.Pipeline, report.Location)
	}
	if syncer.calls != 0 {
		t.Fatalf("live runs should not sync, got %d calls", syncer.calls)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := collector.New(cfg, logging.NewNop(), collector.WithNotifier(&recordingNotifier{})).Run(context.Background(), collector.Mode("replay"))
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
