package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"garagewatch/internal/config"
)

const userAgent = "garagewatch/0.1"

// RunSummary describes one finished collection run.
type RunSummary struct {
	Mode         string
	Seen         int
	Inserted     int
	Duplicates   int
	Uploaded     int64
	FetchFailed  int64
	UploadFailed int64
	Duration     time.Duration
}

// Failed returns the number of items that were not stored.
func (s RunSummary) Failed() int64 {
	return s.FetchFailed + s.UploadFailed
}

// Service defines the notification surface exposed to collectors.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runCompleted: cfg.Notifications.RunCompleted,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runCompleted bool
	errors       bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, s RunSummary) error {
	if !n.runCompleted {
		return nil
	}
	mode := strings.TrimSpace(s.Mode)
	if mode == "" {
		mode = "collection"
	}
	duration := s.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := fmt.Sprintf("garagewatch - %s complete", mode)
	priority := ""
	if s.Failed() > 0 {
		title += " (with failures)"
		priority = "high"
	}
	message := fmt.Sprintf("%d new records, %d images stored, %d failed in %s",
		s.Inserted, s.Uploaded, s.Failed(), duration)
	if s.Duplicates > 0 {
		message += fmt.Sprintf("\n%d duplicates skipped", s.Duplicates)
	}
	return n.send(ctx, payload{
		title:    title,
		message:  message,
		tags:     []string{"garagewatch", mode, "completed"},
		priority: priority,
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" during ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "garagewatch - Error",
		message:  builder.String(),
		tags:     []string{"garagewatch", "error", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "garagewatch - Test",
		message:  "Notification system test",
		tags:     []string{"garagewatch", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
