package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"garagewatch/internal/config"
)

var collectorEnv = []string{
	"DISCORD_TOKEN", "DISCORD_CHANNEL_ID", "NUM_DOWNLOAD_THREADS",
	"STORAGE_SYSTEM", "OUTPUT_DIR",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_SECURE",
	"CAMERA_URL",
	"LABEL_STUDIO_ENABLED", "LABEL_STUDIO_URL", "LABEL_STUDIO_API_KEY", "LABEL_STUDIO_PROJECT_ID",
	"NTFY_TOPIC",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range collectorEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MINIO_ACCESS_KEY", "admin")
	t.Setenv("MINIO_SECRET_KEY", "minio_admin")
	t.Setenv("DISCORD_TOKEN", "token-1")
	t.Setenv("DISCORD_CHANNEL_ID", "123456789")
	t.Setenv("NUM_DOWNLOAD_THREADS", "4")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "garagewatch")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.MetadataPath() != filepath.Join(wantData, "messages.db") {
		t.Fatalf("unexpected metadata path: %q", cfg.MetadataPath())
	}
	if cfg.Storage.System != config.StorageMinIO {
		t.Fatalf("expected minio storage by default, got %q", cfg.Storage.System)
	}
	if cfg.MinIO.Endpoint != "localhost:9000" || cfg.MinIO.Bucket != "garage" {
		t.Fatalf("unexpected minio defaults: %+v", cfg.MinIO)
	}
	if cfg.MinIO.AccessKey != "admin" || cfg.MinIO.SecretKey != "minio_admin" {
		t.Fatalf("expected minio credentials from env, got %+v", cfg.MinIO)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("expected workers from NUM_DOWNLOAD_THREADS, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Ingest.CommitInterval != 100 {
		t.Fatalf("unexpected commit interval: %d", cfg.Ingest.CommitInterval)
	}
	if err := cfg.ValidateHistory(); err != nil {
		t.Fatalf("ValidateHistory: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "garagewatch.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Pipeline struct {
			Workers       int `toml:"workers"`
			QueueCapacity int `toml:"queue_capacity"`
		} `toml:"pipeline"`
		Storage struct {
			System   string `toml:"system"`
			LocalDir string `toml:"local_dir"`
		} `toml:"storage"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Pipeline.Workers = 3
	custom.Pipeline.QueueCapacity = 50
	custom.Storage.System = "LOCAL"
	custom.Storage.LocalDir = filepath.Join(tempDir, "objects")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.System != config.StorageLocal {
		t.Fatalf("expected storage system to be lower-cased, got %q", cfg.Storage.System)
	}
	if cfg.Pipeline.Workers != 3 || cfg.Pipeline.QueueCapacity != 50 {
		t.Fatalf("unexpected pipeline: %+v", cfg.Pipeline)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
}

func TestFileValuesWinOverEnvironment(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "garagewatch.toml")
	contents := `
[discord]
token = "file-token"
channel_id = "42"

[minio]
access_key = "file-access"
secret_key = "file-secret"
bucket = "file-bucket"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("MINIO_ACCESS_KEY", "env-access")
	t.Setenv("MINIO_BUCKET", "env-bucket")
	t.Setenv("MINIO_SECURE", "true")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Discord.Token != "file-token" {
		t.Errorf("expected token from file, got %q", cfg.Discord.Token)
	}
	if cfg.MinIO.AccessKey != "file-access" {
		t.Errorf("expected access key from file, got %q", cfg.MinIO.AccessKey)
	}
	if cfg.MinIO.Bucket != "file-bucket" {
		t.Errorf("expected bucket from file, got %q", cfg.MinIO.Bucket)
	}
	if !cfg.MinIO.Secure {
		t.Error("expected MINIO_SECURE=true to enable TLS")
	}
}

func TestEnvironmentFillsFieldsTheFileLeavesOut(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "garagewatch.toml")
	contents := `
[discord]
channel_id = "42"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STORAGE_SYSTEM", "LOCAL")
	t.Setenv("OUTPUT_DIR", filepath.Join(t.TempDir(), "frames"))
	t.Setenv("NUM_DOWNLOAD_THREADS", "6")
	t.Setenv("MINIO_BUCKET", "env-bucket")
	t.Setenv("LABEL_STUDIO_URL", "http://labels.local:8080/")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.System != config.StorageLocal {
		t.Errorf("expected STORAGE_SYSTEM to select local, got %q", cfg.Storage.System)
	}
	if !strings.HasSuffix(cfg.Storage.LocalDir, "frames") {
		t.Errorf("expected OUTPUT_DIR to set local dir, got %q", cfg.Storage.LocalDir)
	}
	if cfg.Pipeline.Workers != 6 {
		t.Errorf("expected NUM_DOWNLOAD_THREADS to size the pool, got %d", cfg.Pipeline.Workers)
	}
	if cfg.MinIO.Bucket != "env-bucket" {
		t.Errorf("expected bucket from env, got %q", cfg.MinIO.Bucket)
	}
	if cfg.LabelStudio.URL != "http://labels.local:8080" {
		t.Errorf("expected label studio url from env, got %q", cfg.LabelStudio.URL)
	}
}

func TestExplicitFileDefaultsWinOverEnvironment(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "garagewatch.toml")
	contents := `
[pipeline]
workers = 10

[storage]
system = "minio"

[minio]
endpoint = "localhost:9000"
access_key = "a"
secret_key = "s"
bucket = "garage"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STORAGE_SYSTEM", "local")
	t.Setenv("NUM_DOWNLOAD_THREADS", "3")
	t.Setenv("MINIO_ENDPOINT", "minio.internal:9000")
	t.Setenv("MINIO_BUCKET", "other")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.System != config.StorageMinIO {
		t.Errorf("expected file storage system, got %q", cfg.Storage.System)
	}
	if cfg.Pipeline.Workers != 10 {
		t.Errorf("expected file worker count, got %d", cfg.Pipeline.Workers)
	}
	if cfg.MinIO.Endpoint != "localhost:9000" || cfg.MinIO.Bucket != "garage" {
		t.Errorf("expected file minio settings, got %+v", cfg.MinIO)
	}
}

func TestQueueCapacityNeverBelowWorkers(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "garagewatch.toml")
	contents := `
[storage]
system = "blob"
blob_url = "mem://"

[pipeline]
workers = 8
queue_capacity = 2
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Pipeline.QueueCapacity != 8 {
		t.Fatalf("expected capacity raised to worker count, got %d", cfg.Pipeline.QueueCapacity)
	}
}

func TestValidateRejectsIncompleteStorage(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name: "minio without access key",
			mutate: func(c *config.Config) {
				c.MinIO.SecretKey = "s"
			},
			wantErr: "minio.access_key",
		},
		{
			name: "minio without bucket",
			mutate: func(c *config.Config) {
				c.MinIO.AccessKey = "a"
				c.MinIO.SecretKey = "s"
				c.MinIO.Bucket = ""
			},
			wantErr: "minio.bucket",
		},
		{
			name: "blob without url",
			mutate: func(c *config.Config) {
				c.Storage.System = config.StorageBlob
			},
			wantErr: "storage.blob_url",
		},
		{
			name: "unknown system",
			mutate: func(c *config.Config) {
				c.Storage.System = "ftp"
			},
			wantErr: "storage.system",
		},
		{
			name: "label studio without project",
			mutate: func(c *config.Config) {
				c.Storage.System = config.StorageLocal
				c.LabelStudio.Enabled = true
			},
			wantErr: "label_studio.project_id",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateHistoryRequiresDiscordSettings(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateHistory(); err == nil || !strings.Contains(err.Error(), "discord.token") {
		t.Fatalf("expected missing token error, got %v", err)
	}
	cfg.Discord.Token = "t"
	if err := cfg.ValidateHistory(); err == nil || !strings.Contains(err.Error(), "discord.channel_id") {
		t.Fatalf("expected missing channel error, got %v", err)
	}
	cfg.Discord.ChannelID = "general"
	if err := cfg.ValidateHistory(); err == nil {
		t.Fatal("expected non-numeric channel id to be rejected")
	}
	cfg.Discord.ChannelID = "998877"
	if err := cfg.ValidateHistory(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateLiveRequiresHTTPCameraURL(t *testing.T) {
	cfg := config.Default()
	for _, tc := range []struct {
		url string
		ok  bool
	}{
		{"", false},
		{"rtsp://camera.local/stream", false},
		{"http://", false},
		{"http://camera.local/snapshot.jpg", true},
		{"https://camera.local/snap", true},
	} {
		cfg.Camera.URL = tc.url
		err := cfg.ValidateLive()
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.url, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected error", tc.url)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(contents, &decoded); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if decoded.Pipeline.Workers != 10 {
		t.Fatalf("unexpected sample workers: %d", decoded.Pipeline.Workers)
	}
}
