package metadata

import "time"

// Record is the metadata row stored for one collected image.
type Record struct {
	ItemID              int64
	ClassificationLabel string
	// Confidence is nil when the source carried no confidence field.
	Confidence     *float64
	OccupancyState string
	ObservedAt     time.Time
	CreatedAt      time.Time
}

// Stats summarises the store contents.
type Stats struct {
	Rows       int64
	Labels     map[string]int64
	Unlabelled int64
	FirstItem  int64
	LastItem   int64
	Oldest     time.Time
	Newest     time.Time
}

const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
