package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeSchema()
	c.normalizeReconcile()
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
	if strings.TrimSpace(c.Paths.ReportDir) == "" {
		c.Paths.ReportDir = filepath.Join(c.Paths.DataDir, "reports")
	}
	if c.Paths.ReportDir, err = expandPath(c.Paths.ReportDir); err != nil {
		return fmt.Errorf("paths.report_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "":
		c.Database.Driver = defaultDatabaseDriver
	case "postgresql", "pgx":
		c.Database.Driver = DriverPostgres
	case "sqlite3":
		c.Database.Driver = DriverSQLite
	}

	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("CONSENTSYNC_DATABASE_DSN"); ok {
			c.Database.DSN = strings.TrimSpace(value)
		}
	}

	path := strings.TrimSpace(c.Database.Path)
	if path == "" {
		path = defaultDatabasePath
	}
	if path == ":memory:" {
		c.Database.Path = path
		return nil
	}
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "~") {
		path = filepath.Join(c.Paths.DataDir, path)
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	c.Database.Path = expanded
	return nil
}

func (c *Config) normalizeSchema() {
	c.Schema.Namespace = strings.TrimSpace(c.Schema.Namespace)
	if c.Schema.Namespace == "" {
		if value, ok := os.LookupEnv("CONSENTSYNC_SCHEMA_NAMESPACE"); ok {
			c.Schema.Namespace = strings.TrimSpace(value)
		}
	}
	c.Schema.Namespace = strings.ToLower(c.Schema.Namespace)
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.BatchSize == 0 {
		c.Reconcile.BatchSize = defaultBatchSize
	}
	if c.Reconcile.ChunkSize == 0 {
		c.Reconcile.ChunkSize = defaultChunkSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
