package config

const (
	defaultConfigPath       = "~/.config/flowpool/config.toml"
	defaultWorkspaceDir     = "~/.local/share/flowpool/workspace"
	defaultOutputDir        = "~/.local/share/flowpool/output"
	defaultLogDir           = "~/.local/share/flowpool/logs"
	defaultPIDFileName      = "flowpool.pid"
	defaultPoolMaxSize      = 4
	defaultSleepInterval    = 10
	defaultShutdownWait     = 60
	defaultEngineCommand    = "makeflow"
	defaultFailedDirPattern = "makeflow.failed.*"
	defaultCatalogCommand   = "catalog_server"
	defaultWorkersCommand   = "work_queue_factory"
	defaultQueueBackend     = BackendSQLite
	defaultSQLiteName       = "queue.db"
	defaultMaxAttempts      = 3
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultMetricsBind      = "127.0.0.1:9464"
	defaultNotifyTimeout    = 10
)

// Queue backends accepted by queue.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			OutputDir:    defaultOutputDir,
			LogDir:       defaultLogDir,
		},
		Pool: Pool{
			MaxSize:       defaultPoolMaxSize,
			SleepInterval: defaultSleepInterval,
			ShutdownWait:  defaultShutdownWait,
		},
		Retention: Retention{
			Logs:      "on_failure",
			Documents: "on_failure",
			Outputs:   "on_failure",
		},
		Engine: Engine{
			Command:          defaultEngineCommand,
			Args:             []string{"-T", "wq", "-N", "{run_name}", "-P", "{priority}", "{document}"},
			FailedDirPattern: defaultFailedDirPattern,
		},
		Services: Services{
			Catalog: Service{
				Command: defaultCatalogCommand,
				Args:    []string{"-p", "9097"},
			},
			Workers: Service{
				Command: defaultWorkersCommand,
				Args:    []string{"-T", "local", "-M", "flowpool.*", "-w", "2", "-W", "8"},
			},
		},
		Queue: Queue{
			Backend:     defaultQueueBackend,
			MaxAttempts: defaultMaxAttempts,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			ChainFailures:  true,
		},
	}
}
