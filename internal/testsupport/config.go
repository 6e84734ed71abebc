package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"consentsync/internal/config"
)

// PostgresDSNEnv names the variable that enables PostgreSQL-backed tests.
const PostgresDSNEnv = "CONSENTSYNC_TEST_POSTGRES_DSN"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ReportDir = filepath.Join(base, "reports")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.Path = filepath.Join(base, "data", "consentsync.db")

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

// WithBatchSize overrides the identity flush size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.BatchSize = n
	}
}

// WithChunkSize overrides the streaming read chunk size.
func WithChunkSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.ChunkSize = n
	}
}

// WithIgnoreConflicts toggles duplicate-key skipping on bulk inserts.
func WithIgnoreConflicts(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.IgnoreConflicts = enabled
	}
}

// WithNamespace sets the schema namespace override.
func WithNamespace(namespace string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schema.Namespace = namespace
	}
}

// WithPostgres points the config at the PostgreSQL database named by
// CONSENTSYNC_TEST_POSTGRES_DSN, skipping the test when it is unset.
func WithPostgres() ConfigOption {
	return func(b *configBuilder) {
		dsn := os.Getenv(PostgresDSNEnv)
		if dsn == "" {
			b.t.Skipf("%s not set", PostgresDSNEnv)
		}
		b.cfg.Database.Driver = config.DriverPostgres
		b.cfg.Database.DSN = dsn
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
