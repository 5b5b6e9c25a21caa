package metadata_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"garagewatch/internal/metadata"
	"garagewatch/internal/testsupport"
)

func ptr(v float64) *float64 { return &v }

func TestInsertAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	observed := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	rec := metadata.Record{
		ItemID:              1200000000000000001,
		ClassificationLabel: "open",
		Confidence:          ptr(97),
		OccupancyState:      "occupied",
		ObservedAt:          observed,
	}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get(ctx, rec.ItemID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record before commit")
	}
	if got.ClassificationLabel != "open" || got.OccupancyState != "occupied" {
		t.Fatalf("unexpected record %#v", got)
	}
	if got.Confidence == nil || *got.Confidence != 97 {
		t.Fatalf("unexpected confidence %v", got.Confidence)
	}
	if !got.ObservedAt.Equal(observed) {
		t.Fatalf("observed_at = %v, want %v", got.ObservedAt, observed)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	missing, err := store.Get(ctx, 5)
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %v, %v", missing, err)
	}
}

func TestInsertDuplicateLeavesOriginal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Insert(ctx, metadata.Record{ItemID: 7, ClassificationLabel: "closed"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	err := store.Insert(ctx, metadata.Record{ItemID: 7, ClassificationLabel: "open"})
	if !errors.Is(err, metadata.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ClassificationLabel != "closed" {
		t.Fatalf("duplicate overwrote row: %#v", got)
	}
	if store.Pending() != 0 {
		t.Fatalf("duplicate counted as pending: %d", store.Pending())
	}
}

func TestConfidenceNullWhenAbsent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Insert(ctx, metadata.Record{ItemID: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, metadata.Record{ItemID: 2, Confidence: ptr(0)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	first, _ := store.Get(ctx, 1)
	second, _ := store.Get(ctx, 2)
	if first.Confidence != nil {
		t.Fatalf("expected NULL confidence, got %v", *first.Confidence)
	}
	if second.Confidence == nil || *second.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", second.Confidence)
	}
}

func TestLastItemIDUsesNumericOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, ok, err := store.LastItemID(ctx); err != nil || ok {
		t.Fatalf("empty store LastItemID ok=%v err=%v", ok, err)
	}
	testsupport.SeedRecords(t, store, "open", 9, 100, 11)

	last, ok, err := store.LastItemID(ctx)
	if err != nil || !ok {
		t.Fatalf("LastItemID ok=%v err=%v", ok, err)
	}
	if last != 100 {
		t.Fatalf("LastItemID = %d, want 100", last)
	}
}

func TestCloseCommitsPendingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	store, err := metadata.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		if err := store.Insert(ctx, metadata.Record{ItemID: id}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if store.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", store.Pending())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := metadata.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	records, err := reopened.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 committed rows, got %d", len(records))
	}
	if records[0].ItemID != 3 {
		t.Fatalf("List should return newest first, got %d", records[0].ItemID)
	}
}

func TestCommitSurvivesCancelledInsertContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	if err := store.Insert(ctx, metadata.Record{ItemID: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	cancel()
	if err := store.Commit(); err != nil {
		t.Fatalf("Commit after cancel: %v", err)
	}
	if _, ok, err := store.LastItemID(context.Background()); err != nil || !ok {
		t.Fatalf("row lost after cancel: ok=%v err=%v", ok, err)
	}
}

func TestListLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store, "open", 1, 2, 3, 4, 5)

	records, err := store.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].ItemID != 5 || records[1].ItemID != 4 {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []metadata.Record{
		{ItemID: 10, ClassificationLabel: "open", ObservedAt: base},
		{ItemID: 11, ClassificationLabel: "open", ObservedAt: base.Add(time.Hour)},
		{ItemID: 12, ClassificationLabel: "closed", ObservedAt: base.Add(2 * time.Hour)},
		{ItemID: 13},
	}
	for _, rec := range rows {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Rows != 4 || stats.Unlabelled != 1 {
		t.Fatalf("unexpected totals %#v", stats)
	}
	if stats.Labels["open"] != 2 || stats.Labels["closed"] != 1 {
		t.Fatalf("unexpected labels %#v", stats.Labels)
	}
	if stats.FirstItem != 10 || stats.LastItem != 13 {
		t.Fatalf("unexpected item range %d..%d", stats.FirstItem, stats.LastItem)
	}
	if !stats.Oldest.Equal(base) || !stats.Newest.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("unexpected time range %v..%v", stats.Oldest, stats.Newest)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	store, err := metadata.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := metadata.OpenPath(path); !errors.Is(err, metadata.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
