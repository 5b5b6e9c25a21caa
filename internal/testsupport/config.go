package testsupport

import (
	"path/filepath"
	"testing"

	"garagewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage defaults to the local backend rooted under the temp directory and
// notifications stay disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.System = config.StorageLocal
	cfgVal.Storage.LocalDir = filepath.Join(base, "objects")
	cfgVal.Pipeline.Workers = 3
	cfgVal.Pipeline.QueueCapacity = 16
	cfgVal.Pipeline.GetTimeoutSeconds = 1
	cfgVal.Pipeline.ShutdownTimeoutSeconds = 5
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
		if b.cfg.Pipeline.QueueCapacity < n {
			b.cfg.Pipeline.QueueCapacity = n
		}
	}
}

// WithMemoryStorage switches the sink to an in-process blob bucket.
func WithMemoryStorage() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.System = config.StorageBlob
		b.cfg.Storage.BlobURL = "mem://"
	}
}

// WithDiscord sets history source credentials.
func WithDiscord(token, channelID string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Discord.Token = token
		b.cfg.Discord.ChannelID = channelID
	}
}

// WithCamera sets the live snapshot endpoint.
func WithCamera(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Camera.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
