package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDiscord()
	c.normalizePipeline()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeCamera()
	c.normalizeLabelStudio()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiscord() {
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	if c.Discord.Token == "" {
		c.Discord.Token = envString("DISCORD_TOKEN")
	}
	c.Discord.ChannelID = strings.TrimSpace(c.Discord.ChannelID)
	if c.Discord.ChannelID == "" || c.Discord.ChannelID == "0" {
		c.Discord.ChannelID = envString("DISCORD_CHANNEL_ID")
	}
	if c.Discord.ChannelID == "0" {
		c.Discord.ChannelID = ""
	}
	if c.Discord.PageSize <= 0 || c.Discord.PageSize > maxDiscordPageSize {
		c.Discord.PageSize = defaultDiscordPageSize
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Workers <= 0 {
		if n, ok := envInt("NUM_DOWNLOAD_THREADS"); ok && n > 0 {
			c.Pipeline.Workers = n
		} else {
			c.Pipeline.Workers = defaultWorkers
		}
	}
	if c.Pipeline.QueueCapacity <= 0 {
		c.Pipeline.QueueCapacity = defaultQueueCapacity
	}
	if c.Pipeline.QueueCapacity < c.Pipeline.Workers {
		c.Pipeline.QueueCapacity = c.Pipeline.Workers
	}
	if c.Pipeline.GetTimeoutSeconds <= 0 {
		c.Pipeline.GetTimeoutSeconds = defaultGetTimeoutSeconds
	}
	if c.Pipeline.ShutdownTimeoutSeconds <= 0 {
		c.Pipeline.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	if c.Pipeline.FetchTimeoutSeconds <= 0 {
		c.Pipeline.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}
	if c.Pipeline.MaxObjectBytes < 0 {
		c.Pipeline.MaxObjectBytes = 0
	}
	c.Pipeline.UserAgent = strings.TrimSpace(c.Pipeline.UserAgent)
	if c.Pipeline.UserAgent == "" {
		c.Pipeline.UserAgent = defaultUserAgent
	}
	if c.Ingest.CommitInterval <= 0 {
		c.Ingest.CommitInterval = defaultCommitInterval
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.System = strings.ToLower(strings.TrimSpace(c.Storage.System))
	if c.Storage.System == "" {
		c.Storage.System = strings.ToLower(envString("STORAGE_SYSTEM"))
	}
	if c.Storage.System == "" {
		c.Storage.System = StorageMinIO
	}

	c.Storage.LocalDir = envOr(c.Storage.LocalDir, "OUTPUT_DIR", defaultLocalDir)
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.BlobURL = strings.TrimSpace(c.Storage.BlobURL)

	c.MinIO.Endpoint = envOr(c.MinIO.Endpoint, "MINIO_ENDPOINT", defaultMinIOEndpoint)
	c.MinIO.AccessKey = strings.TrimSpace(c.MinIO.AccessKey)
	if c.MinIO.AccessKey == "" {
		c.MinIO.AccessKey = envString("MINIO_ACCESS_KEY")
	}
	c.MinIO.SecretKey = strings.TrimSpace(c.MinIO.SecretKey)
	if c.MinIO.SecretKey == "" {
		c.MinIO.SecretKey = envString("MINIO_SECRET_KEY")
	}
	c.MinIO.Bucket = envOr(c.MinIO.Bucket, "MINIO_BUCKET", defaultMinIOBucket)
	if !c.MinIO.Secure {
		c.MinIO.Secure = envBool("MINIO_SECURE")
	}
	c.MinIO.Region = strings.TrimSpace(c.MinIO.Region)
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.URL = strings.TrimSpace(c.Camera.URL)
	if c.Camera.URL == "" {
		c.Camera.URL = envString("CAMERA_URL")
	}
	if c.Camera.FrameIntervalMS <= 0 {
		c.Camera.FrameIntervalMS = defaultFrameIntervalMS
	}
	if c.Camera.RuntimeMinutes <= 0 {
		c.Camera.RuntimeMinutes = defaultRuntimeMinutes
	}
}

func (c *Config) normalizeLabelStudio() {
	if !c.LabelStudio.Enabled {
		c.LabelStudio.Enabled = envBool("LABEL_STUDIO_ENABLED")
	}
	c.LabelStudio.URL = strings.TrimRight(envOr(c.LabelStudio.URL, "LABEL_STUDIO_URL", defaultLabelStudioURL), "/")
	c.LabelStudio.APIKey = strings.TrimSpace(c.LabelStudio.APIKey)
	if c.LabelStudio.APIKey == "" {
		c.LabelStudio.APIKey = envString("LABEL_STUDIO_API_KEY")
	}
	if c.LabelStudio.ProjectID <= 0 {
		if n, ok := envInt("LABEL_STUDIO_PROJECT_ID"); ok {
			c.LabelStudio.ProjectID = n
		}
	}
	if c.LabelStudio.TimeoutSeconds <= 0 {
		c.LabelStudio.TimeoutSeconds = defaultLabelStudioTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = envString("NTFY_TOPIC")
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envString(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// envOr keeps a value set in the file, else falls back to the environment and
// then to fallback.
func envOr(value, key, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	if value = envString(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string) (int, bool) {
	value := envString(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	return strings.EqualFold(envString(key), "true")
}
