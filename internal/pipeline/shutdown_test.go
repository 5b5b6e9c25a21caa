package pipeline

import (
	"context"
	"testing"
	"time"

	"garagewatch/internal/logging"
)

func TestShutdownReportsStuckWorkers(t *testing.T) {
	q := NewQueue(4)
	p := NewPool(q, nil, Options{Workers: 3, Logger: logging.NewNop()})

	exited := make(chan struct{})
	close(exited)
	cancelled := false
	p.started = true
	p.cancel = func() { cancelled = true }
	p.done = []chan struct{}{exited, make(chan struct{}), make(chan struct{})}
	p.alive.Store(2)

	start := time.Now()
	stuck, err := p.Shutdown(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(stuck) != 2 || stuck[0] != 2 || stuck[1] != 3 {
		t.Fatalf("stuck = %v, want [2 3]", stuck)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shared deadline exceeded: %v", elapsed)
	}
	if !cancelled {
		t.Fatal("expected abandoned workers to be cancelled")
	}
	if q.Len() != 3 {
		t.Fatalf("expected one marker per worker, queue holds %d", q.Len())
	}
	if got := p.Stats().StuckWorkers; got != 2 {
		t.Fatalf("StuckWorkers = %d", got)
	}

	again, err := p.Shutdown(context.Background(), time.Millisecond)
	if err != nil || len(again) != 2 {
		t.Fatalf("repeated Shutdown = %v, %v", again, err)
	}
}
