package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable by every command. Collector
// specific requirements live in ValidateHistory and ValidateLive.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLabelStudio(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

// ValidateHistory checks the settings needed to backfill Discord history.
func (c *Config) ValidateHistory() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("discord.token is required (set DISCORD_TOKEN)")
	}
	if strings.TrimSpace(c.Discord.ChannelID) == "" {
		return errors.New("discord.channel_id is required (set DISCORD_CHANNEL_ID)")
	}
	if _, err := strconv.ParseUint(c.Discord.ChannelID, 10, 64); err != nil {
		return fmt.Errorf("discord.channel_id must be a numeric snowflake: %q", c.Discord.ChannelID)
	}
	return nil
}

// ValidateLive checks the settings needed for live camera collection.
func (c *Config) ValidateLive() error {
	raw := strings.TrimSpace(c.Camera.URL)
	if raw == "" {
		return errors.New("camera.url is required (set CAMERA_URL)")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("camera.url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("camera.url must be an http:// or https:// snapshot URL, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("camera.url must include a host")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":                  c.Pipeline.Workers,
		"pipeline.queue_capacity":           c.Pipeline.QueueCapacity,
		"pipeline.get_timeout_seconds":      c.Pipeline.GetTimeoutSeconds,
		"pipeline.shutdown_timeout_seconds": c.Pipeline.ShutdownTimeoutSeconds,
		"pipeline.fetch_timeout_seconds":    c.Pipeline.FetchTimeoutSeconds,
		"ingest.commit_interval":            c.Ingest.CommitInterval,
	}); err != nil {
		return err
	}
	if c.Pipeline.QueueCapacity < c.Pipeline.Workers {
		return errors.New("pipeline.queue_capacity must be at least pipeline.workers")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.System {
	case StorageMinIO:
		if c.MinIO.Endpoint == "" {
			return errors.New("minio.endpoint is required when storage.system is \"minio\" (set MINIO_ENDPOINT)")
		}
		if c.MinIO.AccessKey == "" {
			return errors.New("minio.access_key is required when storage.system is \"minio\" (set MINIO_ACCESS_KEY)")
		}
		if c.MinIO.SecretKey == "" {
			return errors.New("minio.secret_key is required when storage.system is \"minio\" (set MINIO_SECRET_KEY)")
		}
		if c.MinIO.Bucket == "" {
			return errors.New("minio.bucket is required when storage.system is \"minio\" (set MINIO_BUCKET)")
		}
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.system is \"local\"")
		}
	case StorageBlob:
		if c.Storage.BlobURL == "" {
			return errors.New("storage.blob_url must be set when storage.system is \"blob\"")
		}
		if _, err := url.Parse(c.Storage.BlobURL); err != nil {
			return fmt.Errorf("storage.blob_url: %w", err)
		}
	default:
		return fmt.Errorf("storage.system must be one of minio, local, blob (got %q)", c.Storage.System)
	}
	return nil
}

func (c *Config) validateLabelStudio() error {
	if !c.LabelStudio.Enabled {
		return nil
	}
	if c.LabelStudio.URL == "" {
		return errors.New("label_studio.url must be set when label_studio.enabled is true")
	}
	if c.LabelStudio.ProjectID <= 0 {
		return errors.New("label_studio.project_id must be positive when label_studio.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
