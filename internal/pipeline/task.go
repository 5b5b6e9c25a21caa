package pipeline

// TaskKind discriminates queue entries.
type TaskKind int

const (
	// TaskWork carries a WorkItem to download.
	TaskWork TaskKind = iota
	// TaskShutdown tells the receiving worker to exit.
	TaskShutdown
)

func (k TaskKind) String() string {
	switch k {
	case TaskWork:
		return "work"
	case TaskShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// WorkItem identifies one image to fetch and store.
type WorkItem struct {
	// ID is the numeric identifier used to name the stored object.
	ID int64
	// Locator is the absolute URL of the image.
	Locator string
}

// Task is a queue entry: either a work item or a shutdown marker.
type Task struct {
	Kind TaskKind
	Item WorkItem
}

// IsShutdown reports whether t is a shutdown marker.
func (t Task) IsShutdown() bool { return t.Kind == TaskShutdown }
