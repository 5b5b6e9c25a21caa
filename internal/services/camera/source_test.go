package camera

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"garagewatch/internal/config"
	"garagewatch/internal/ingest"
	"garagewatch/internal/logging"
	"garagewatch/internal/services"
)

func newTestSource(url string, interval, runtime time.Duration) *Source {
	cfg := config.Default()
	cfg.Camera.URL = url
	src := NewSource(&cfg, logging.NewNop())
	src.interval = interval
	src.runtime = runtime
	return src
}

func TestMessagesEmitsFramesUntilRuntime(t *testing.T) {
	src := newTestSource("http://cam.local/snapshot.jpg", 10*time.Millisecond, 55*time.Millisecond)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	var ids []int64
	err := src.Messages(context.Background(), 0, func(m ingest.Message) error {
		ids = append(ids, m.ID)
		if len(m.Attachments) != 1 || m.Attachments[0].URL != "http://cam.local/snapshot.jpg" {
			t.Errorf("unexpected attachments %+v", m.Attachments)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(ids) < 2 {
		t.Fatalf("expected several frames, got %v", ids)
	}
	if ids[0] != fixed.UnixMilli() {
		t.Fatalf("first id = %d, want %d", ids[0], fixed.UnixMilli())
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}
}

func TestMessagesStayAboveCursor(t *testing.T) {
	src := newTestSource("http://cam.local/s.jpg", time.Hour, 10*time.Millisecond)
	src.now = func() time.Time { return time.UnixMilli(100) }
	var first int64
	_ = src.Messages(context.Background(), 500, func(m ingest.Message) error {
		first = m.ID
		return nil
	})
	if first != 501 {
		t.Fatalf("first id = %d, want 501", first)
	}
}

func TestMessagesReturnsOnCancel(t *testing.T) {
	src := newTestSource("http://cam.local/s.jpg", 5*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	err := src.Messages(ctx, 0, func(ingest.Message) error {
		count++
		if count == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCheckReachesCamera(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	if err := newTestSource(server.URL+"/snap.jpg", time.Second, time.Second).Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	err := newTestSource(server.URL+"/missing.jpg", time.Second, time.Second).Check(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err = newTestSource("rtsp://cam.local/stream", time.Second, time.Second).Check(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
