package config

const (
	defaultConfigPath             = "~/.config/garagewatch/config.toml"
	defaultDataDir                = "~/.local/share/garagewatch"
	defaultLogDir                 = "~/.local/share/garagewatch/logs"
	defaultLocalDir               = "./"
	defaultDiscordPageSize        = 100
	defaultWorkers                = 10
	defaultQueueCapacity          = 1000
	defaultGetTimeoutSeconds      = 10
	defaultShutdownTimeoutSeconds = 5
	defaultFetchTimeoutSeconds    = 60
	defaultUserAgent              = "garagewatch/dev"
	defaultCommitInterval         = 100
	defaultMinIOEndpoint          = "localhost:9000"
	defaultMinIOBucket            = "garage"
	defaultFrameIntervalMS        = 1000
	defaultRuntimeMinutes         = 5
	defaultLabelStudioURL         = "http://localhost:8080"
	defaultLabelStudioTimeout     = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	maxDiscordPageSize            = 100
)

// Storage backend names.
const (
	StorageMinIO = "minio"
	StorageLocal = "local"
	StorageBlob  = "blob"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Discord: Discord{
			PageSize: defaultDiscordPageSize,
		},
		Pipeline: Pipeline{
			Workers:                defaultWorkers,
			QueueCapacity:          defaultQueueCapacity,
			GetTimeoutSeconds:      defaultGetTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			FetchTimeoutSeconds:    defaultFetchTimeoutSeconds,
			UserAgent:              defaultUserAgent,
		},
		Ingest: Ingest{
			CommitInterval: defaultCommitInterval,
		},
		Storage: Storage{
			System:   StorageMinIO,
			LocalDir: defaultLocalDir,
		},
		MinIO: MinIO{
			Endpoint: defaultMinIOEndpoint,
			Bucket:   defaultMinIOBucket,
		},
		Camera: Camera{
			FrameIntervalMS: defaultFrameIntervalMS,
			RuntimeMinutes:  defaultRuntimeMinutes,
		},
		LabelStudio: LabelStudio{
			URL:            defaultLabelStudioURL,
			TimeoutSeconds: defaultLabelStudioTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// fileBase is Default with the environment-backed fields cleared, so normalize
// can tell a value the file set from one it left out.
func fileBase() Config {
	cfg := Default()
	cfg.Pipeline.Workers = 0
	cfg.Storage.System = ""
	cfg.Storage.LocalDir = ""
	cfg.MinIO.Endpoint = ""
	cfg.MinIO.Bucket = ""
	cfg.LabelStudio.URL = ""
	return cfg
}
