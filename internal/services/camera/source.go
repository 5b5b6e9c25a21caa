package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"garagewatch/internal/config"
	"garagewatch/internal/ingest"
	"garagewatch/internal/logging"
	"garagewatch/internal/services"
)

const serviceName = "camera"

// Source polls a snapshot URL at a fixed interval for a bounded runtime.
type Source struct {
	url      string
	interval time.Duration
	runtime  time.Duration
	client   *http.Client
	now      func() time.Time
	logger   *slog.Logger
}

// NewSource builds a snapshot source from cfg.Camera.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	return &Source{
		url:      strings.TrimSpace(cfg.Camera.URL),
		interval: cfg.FrameInterval(),
		runtime:  cfg.CameraRuntime(),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		logger:   logging.NewComponentLogger(logger, serviceName),
	}
}

// Check fetches one snapshot to confirm the camera answers with an image.
func (s *Source) Check(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return services.Wrap(services.ErrConfiguration, serviceName, "check", fmt.Sprintf("unsupported camera url %q", s.url), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, serviceName, "check", "build request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, serviceName, "check", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.MarkerForStatus(resp.StatusCode), serviceName, "check",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return nil
}

// Messages emits one frame per interval until the runtime limit elapses. Frame
// ids are strictly increasing and always greater than after. Cancelling ctx
// returns ctx.Err(); reaching the runtime limit returns nil.
func (s *Source) Messages(ctx context.Context, after int64, fn func(ingest.Message) error) error {
	runCtx, cancel := context.WithTimeout(ctx, s.runtime)
	defer cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := after
	frames := 0
	emit := func() error {
		ts := s.now().UTC()
		id := ts.UnixMilli()
		if id <= last {
			id = last + 1
		}
		last = id
		frames++
		return fn(ingest.Message{
			ID:          id,
			Timestamp:   ts,
			Attachments: []ingest.Attachment{{URL: s.url, Filename: fmt.Sprintf("%d.jpg", id)}},
		})
	}

	s.logger.Info("live capture started",
		logging.Duration("frame_interval", s.interval),
		logging.Duration("runtime", s.runtime),
	)
	if err := emit(); err != nil {
		return err
	}
	for {
		select {
		case <-runCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			s.logger.Info("live capture runtime reached", logging.Int("frames", frames))
			return nil
		case <-ticker.C:
			if err := emit(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return nil
				}
				return err
			}
		}
	}
}
