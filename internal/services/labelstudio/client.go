package labelstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"garagewatch/internal/config"
	"garagewatch/internal/logging"
	"garagewatch/internal/services"
)

const serviceName = "labelstudio"

// HTTPDoer describes the HTTP client used by the Label Studio client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Storage is one import storage attached to a project.
type Storage struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Name returns the title or a generated label.
func (s Storage) Name() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	return fmt.Sprintf("Storage %d", s.ID)
}

// SyncResult summarises one SyncAll call.
type SyncResult struct {
	Storages int
	Synced   int
	Failed   int
}

// Client talks to the Label Studio REST API.
type Client struct {
	baseURL   string
	apiKey    string
	projectID int
	client    HTTPDoer
	logger    *slog.Logger
}

// NewConfiguredClient returns a client for cfg, or nil when the integration is
// disabled or incomplete.
func NewConfiguredClient(cfg *config.Config, logger *slog.Logger) *Client {
	if cfg == nil || !cfg.LabelStudio.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.LabelStudio.APIKey) == "" || strings.TrimSpace(cfg.LabelStudio.URL) == "" {
		logging.WarnWithContext(logging.NewComponentLogger(logger, serviceName),
			"label studio enabled without url or api key", "labelstudio_unconfigured",
			logging.String(logging.FieldErrorHint, "set label_studio.url and label_studio.api_key"),
			logging.String(logging.FieldImpact, "post-run sync skipped"),
		)
		return nil
	}
	timeout := time.Duration(cfg.LabelStudio.TimeoutSeconds) * time.Second
	return NewClient(cfg.LabelStudio.URL, cfg.LabelStudio.APIKey, cfg.LabelStudio.ProjectID,
		&http.Client{Timeout: timeout}, logger)
}

// NewClient constructs a client for an explicit endpoint.
func NewClient(baseURL, apiKey string, projectID int, client HTTPDoer, logger *slog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		projectID: projectID,
		client:    client,
		logger:    logging.NewComponentLogger(logger, serviceName),
	}
}

// ImportStorages lists the project's import storages.
func (c *Client) ImportStorages(ctx context.Context) ([]Storage, error) {
	endpoint := fmt.Sprintf("%s/api/storages/?project=%s", c.baseURL, url.QueryEscape(strconv.Itoa(c.projectID)))
	body, err := c.do(ctx, http.MethodGet, endpoint, "list import storages")
	if err != nil {
		return nil, err
	}
	var storages []Storage
	if err := json.Unmarshal(body, &storages); err != nil {
		return nil, services.Wrap(services.ErrTransient, serviceName, "list import storages", "decode response", err)
	}
	return storages, nil
}

// Sync triggers a sync of one import storage.
func (c *Client) Sync(ctx context.Context, storage Storage) error {
	endpoint := fmt.Sprintf("%s/api/storages/%s/%d/sync", c.baseURL, url.PathEscape(storage.Type), storage.ID)
	_, err := c.do(ctx, http.MethodPost, endpoint, "sync storage "+storage.Name())
	return err
}

// SyncAll syncs every import storage. Per-storage failures are logged and
// counted; only failing to list storages is returned as an error.
func (c *Client) SyncAll(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if c == nil {
		return res, nil
	}
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("running label studio sync", logging.Int("project_id", c.projectID))

	storages, err := c.ImportStorages(ctx)
	if err != nil {
		return res, err
	}
	res.Storages = len(storages)
	logger.Info("found import storages", logging.Int("count", len(storages)))

	for _, storage := range storages {
		if err := c.Sync(ctx, storage); err != nil {
			res.Failed++
			logging.WarnWithContext(logger, "import storage sync failed", "labelstudio_sync_failed",
				logging.String("storage", storage.Name()),
				logging.Int("storage_id", storage.ID),
				logging.String("storage_type", storage.Type),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "new images not imported for this storage"),
			)
			continue
		}
		res.Synced++
		logger.Info("import storage synced",
			logging.String("storage", storage.Name()),
			logging.Int("storage_id", storage.ID),
		)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, serviceName, operation, "build request", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, serviceName, operation, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, serviceName, operation, "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.MarkerForStatus(resp.StatusCode), serviceName, operation,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return body, nil
}
