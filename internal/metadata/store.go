package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"garagewatch/internal/config"
)

// ErrDuplicate is returned by Insert when a row with the same item id exists.
// The existing row is left unchanged.
var ErrDuplicate = errors.New("metadata record already exists")

// Store manages metadata persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	tx      *sql.Tx
	pending int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the metadata database configured in cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.MetadataPath())
}

// OpenPath opens the database file at dbPath, creating the schema when absent.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps reads inside the pending write transaction visible.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the pending transaction when one is open. Caller holds mu.
func (s *Store) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Insert adds rec to the pending transaction. It returns ErrDuplicate when
// the item id is already stored.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		var tx *sql.Tx
		if err := retryOnBusy(ctx, func() error {
			var beginErr error
			// Detached from ctx so cancelling the caller does not roll back rows
			// awaiting Commit.
			tx, beginErr = s.db.BeginTx(context.Background(), nil)
			return beginErr
		}); err != nil {
			return fmt.Errorf("begin metadata tx: %w", err)
		}
		s.tx = tx
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var confidence any
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}

	res, err := s.tx.ExecContext(ctx, `INSERT INTO records
		(item_id, classification_label, confidence, occupancy_state, observed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING`,
		rec.ItemID,
		nullString(rec.ClassificationLabel),
		confidence,
		nullString(rec.OccupancyState),
		formatTime(rec.ObservedAt),
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("insert record %d: %w", rec.ItemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record %d: rows affected: %w", rec.ItemID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %d", ErrDuplicate, rec.ItemID)
	}
	s.pending++
	return nil
}

// Pending reports how many inserted rows await Commit.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Commit flushes the pending transaction. It is a no-op when nothing is pending.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if s.tx == nil {
		return nil
	}
	err := retryOnBusy(context.Background(), s.tx.Commit)
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

// LastItemID returns the highest stored item id. ok is false on an empty store.
func (s *Store) LastItemID(ctx context.Context) (id int64, ok bool, err error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var last sql.NullInt64
	if err := s.conn().QueryRowContext(ctx, "SELECT MAX(item_id) FROM records").Scan(&last); err != nil {
		return 0, false, fmt.Errorf("query last item id: %w", err)
	}
	return last.Int64, last.Valid, nil
}

const recordColumns = "item_id, classification_label, confidence, occupancy_state, observed_at, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		label      sql.NullString
		confidence sql.NullFloat64
		occupancy  sql.NullString
		observed   sql.NullString
		created    sql.NullString
	)
	if err := row.Scan(&rec.ItemID, &label, &confidence, &occupancy, &observed, &created); err != nil {
		return Record{}, err
	}
	rec.ClassificationLabel = label.String
	if confidence.Valid {
		value := confidence.Float64
		rec.Confidence = &value
	}
	rec.OccupancyState = occupancy.String
	rec.ObservedAt = parseTime(observed.String)
	rec.CreatedAt = parseTime(created.String)
	return rec, nil
}

// Get returns the record for itemID, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, itemID int64) (*Record, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.conn().QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE item_id = ?", itemID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", itemID, err)
	}
	return &rec, nil
}

// List returns up to limit records, newest item id first. A non-positive
// limit returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "SELECT " + recordColumns + " FROM records ORDER BY item_id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Stats aggregates row counts, label distribution and the observed time range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.conn()
	stats := Stats{Labels: map[string]int64{}}
	var (
		first, last    sql.NullInt64
		oldest, newest sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT COUNT(1), MIN(item_id), MAX(item_id), MIN(observed_at), MAX(observed_at)
		FROM records`).Scan(&stats.Rows, &first, &last, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("query record totals: %w", err)
	}
	stats.FirstItem = first.Int64
	stats.LastItem = last.Int64
	stats.Oldest = parseTime(oldest.String)
	stats.Newest = parseTime(newest.String)

	rows, err := q.QueryContext(ctx, `SELECT classification_label, COUNT(1) FROM records GROUP BY classification_label`)
	if err != nil {
		return Stats{}, fmt.Errorf("query label counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			label sql.NullString
			count int64
		)
		if err := rows.Scan(&label, &count); err != nil {
			return Stats{}, fmt.Errorf("scan label count: %w", err)
		}
		if !label.Valid || label.String == "" {
			stats.Unlabelled += count
			continue
		}
		stats.Labels[label.String] += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate label counts: %w", err)
	}
	return stats, nil
}

// Close commits pending work and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	commitErr := s.commitLocked()
	s.mu.Unlock()
	closeErr := s.db.Close()
	return errors.Join(commitErr, closeErr)
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
