package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Discord contains credentials for the channel history source.
type Discord struct {
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
	PageSize  int    `toml:"page_size"`
}

// Pipeline contains worker pool and task queue settings.
type Pipeline struct {
	Workers                int    `toml:"workers"`
	QueueCapacity          int    `toml:"queue_capacity"`
	GetTimeoutSeconds      int    `toml:"get_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
	FetchTimeoutSeconds    int    `toml:"fetch_timeout_seconds"`
	MaxObjectBytes         int64  `toml:"max_object_bytes"`
	UserAgent              string `toml:"user_agent"`
}

// Ingest contains producer settings.
type Ingest struct {
	CommitInterval int `toml:"commit_interval"`
}

// Storage selects the object store backend.
type Storage struct {
	// System is one of "minio", "local", or "blob".
	System   string `toml:"system"`
	LocalDir string `toml:"local_dir"`
	BlobURL  string `toml:"blob_url"`
}

// MinIO contains object store credentials for the minio backend.
type MinIO struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Secure    bool   `toml:"secure"`
	Region    string `toml:"region"`
}

// Camera contains live snapshot collection settings.
type Camera struct {
	URL             string `toml:"url"`
	FrameIntervalMS int    `toml:"frame_interval_ms"`
	RuntimeMinutes  int    `toml:"runtime_minutes"`
}

// LabelStudio contains the downstream sync service settings.
type LabelStudio struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	ProjectID      int    `toml:"project_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for garagewatch.
//
// Configuration sections by subsystem:
//   - Paths: metadata database and log directories
//   - Discord: history source credentials
//   - Pipeline: worker pool, queue, and fetch limits
//   - Ingest: metadata commit cadence
//   - Storage/MinIO: object store backend selection and credentials
//   - Camera: live snapshot collection
//   - LabelStudio: post-run import storage sync
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discord       Discord       `toml:"discord"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Ingest        Ingest        `toml:"ingest"`
	Storage       Storage       `toml:"storage"`
	MinIO         MinIO         `toml:"minio"`
	Camera        Camera        `toml:"camera"`
	LabelStudio   LabelStudio   `toml:"label_studio"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: defaults and environment values are used instead. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := fileBase()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads ./.env when present. Variables already set in the process
// environment win over the file.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("garagewatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories, plus the local
// object directory when the local storage backend is selected.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Storage.System == StorageLocal && strings.TrimSpace(c.Storage.LocalDir) != "" {
		if err := os.MkdirAll(c.Storage.LocalDir, 0o755); err != nil {
			return fmt.Errorf("create local storage directory %q: %w", c.Storage.LocalDir, err)
		}
	}
	return nil
}

// MetadataPath returns the SQLite database path for collected records.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.DataDir, "messages.db")
}

// LockPath returns the lock file guarding the metadata store's single writer.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "garagewatch.lock")
}

// GetTimeout returns how long a worker waits on an empty queue before
// re-checking for cancellation.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Pipeline.GetTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the bound on waiting for workers to exit.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Pipeline.ShutdownTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-request HTTP timeout used by workers.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutSeconds) * time.Second
}

// FrameInterval returns the minimum delay between live camera frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Camera.FrameIntervalMS) * time.Millisecond
}

// CameraRuntime returns how long a live collection runs before stopping.
func (c *Config) CameraRuntime() time.Duration {
	return time.Duration(c.Camera.RuntimeMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
