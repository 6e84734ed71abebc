package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"consentsync/internal/config"
	"consentsync/internal/logging"
	"consentsync/internal/runlock"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
	configSeen bool

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
	runID      string
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// ensureLogger builds the run logger once. Every record carries the run id.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		var level string
		if c.logLevelFlag != nil {
			level = *c.logLevelFlag
		}
		logger, err := logging.NewFromConfig(cfg, level)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.runID = uuid.NewString()
		c.logger = logger.With(logging.String(logging.FieldRunID, c.runID))
	})
	return c.logger, c.loggerErr
}

// withStore opens the configured store for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// resolveTables maps every logical entity to a table before any write happens.
func resolveTables(ctx context.Context, cfg *config.Config, st *store.Store) (schema.Tables, error) {
	catalog, err := st.Catalog(ctx)
	if err != nil {
		return schema.Tables{}, fmt.Errorf("read catalog: %w", err)
	}
	return schema.ResolveCatalog(cfg.Schema.Namespace, catalog)
}

// withRunLock holds the host run lock while fn executes.
func withRunLock(cfg *config.Config, logger *slog.Logger, fn func() error) error {
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(logger, "failed to release run lock", "runlock_release",
				logging.String("lock", lock.Path()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the lock file if no other run is active"),
			)
		}
	}()
	return fn()
}

// logRunFailure records a fatal run error in the run log. Errors that carry a
// kind (configuration problems) are tagged with it so operators can tell a
// setup mistake from a storage failure.
func logRunFailure(logger *slog.Logger, msg string, err error) {
	eventType := "run_failed"
	hint := "check the database and report directory, then rerun"
	var kinded interface{ ErrorKind() string }
	switch {
	case errors.As(err, &kinded):
		eventType = kinded.ErrorKind()
		hint = "set " + schema.OverrideSetting + " or fix the legacy tables, then rerun"
	case errors.Is(err, runlock.ErrLocked):
		eventType = "run_locked"
		hint = "wait for the other run to finish"
	}
	logging.ErrorWithContext(logger, msg, eventType,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
	)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
