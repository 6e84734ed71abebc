package config

import (
	"errors"
	"fmt"
	"regexp"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSchema(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path must be set when database.driver is sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("database.dsn is required for postgres. Set CONSENTSYNC_DATABASE_DSN env var or edit %s (create with 'consentsync config init')", defaultPath)
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateSchema() error {
	if c.Schema.Namespace == "" {
		return nil
	}
	if !namespacePattern.MatchString(c.Schema.Namespace) {
		return fmt.Errorf("schema.namespace %q must be lower-case letters and digits", c.Schema.Namespace)
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.BatchSize < 0 {
		return errors.New("reconcile.batch_size must be positive")
	}
	if c.Reconcile.ChunkSize < 0 {
		return errors.New("reconcile.chunk_size must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
