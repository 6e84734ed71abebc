package config

const (
	defaultConfigPath      = "~/.config/consentsync/config.toml"
	defaultDataDir         = "~/.local/share/consentsync"
	defaultReportDir       = "~/.local/share/consentsync/reports"
	defaultLogDir          = "~/.local/share/consentsync/logs"
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabasePath    = "consentsync.db"
	defaultBatchSize       = 1000
	defaultChunkSize       = 1000
	defaultIgnoreConflicts = true
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			ReportDir: defaultReportDir,
			LogDir:    defaultLogDir,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
			Path:   defaultDatabasePath,
		},
		Reconcile: Reconcile{
			BatchSize: defaultBatchSize,
			ChunkSize: defaultChunkSize,
		},
		Storage: Storage{
			IgnoreConflicts: defaultIgnoreConflicts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
