package pipeline

import "sync/atomic"

// Outcome records what happened to one work item.
type Outcome int

const (
	// OutcomeUploaded means the payload was fetched and stored.
	OutcomeUploaded Outcome = iota
	// OutcomeFetchFailed means the locator could not be downloaded.
	OutcomeFetchFailed
	// OutcomeUploadFailed means the sink rejected the payload.
	OutcomeUploadFailed
	// OutcomeCrashed means the handler panicked.
	OutcomeCrashed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeUploadFailed:
		return "upload_failed"
	case OutcomeCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Stats aggregates per-item outcomes and worker health.
type Stats struct {
	Processed    int64
	Uploaded     int64
	FetchFailed  int64
	UploadFailed int64
	Crashed      int64
	BytesFetched int64
	Workers      int
	DeadWorkers  int64
	StuckWorkers int
}

type counters struct {
	processed    atomic.Int64
	uploaded     atomic.Int64
	fetchFailed  atomic.Int64
	uploadFailed atomic.Int64
	crashed      atomic.Int64
	bytes        atomic.Int64
	dead         atomic.Int64
}

func (c *counters) record(o Outcome, bytes int) {
	c.processed.Add(1)
	switch o {
	case OutcomeUploaded:
		c.uploaded.Add(1)
	case OutcomeFetchFailed:
		c.fetchFailed.Add(1)
	case OutcomeUploadFailed:
		c.uploadFailed.Add(1)
	case OutcomeCrashed:
		c.crashed.Add(1)
	}
	if bytes > 0 {
		c.bytes.Add(int64(bytes))
	}
}
