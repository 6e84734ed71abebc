package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"consentsync/internal/config"
)

// Store manages entity persistence over database/sql.
type Store struct {
	db              *sql.DB
	dialect         dialect
	path            string
	ignoreConflicts bool
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open store: nil config")
	}
	ctx = ensureContext(ctx)

	var (
		d      dialect
		source string
	)
	switch strings.ToLower(cfg.Database.Driver) {
	case config.DriverSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		d = sqliteDialect
		source = cfg.Database.Path
	case config.DriverPostgres:
		d = postgresDialect
		source = cfg.Database.DSN
	default:
		return nil, fmt.Errorf("open store: unsupported driver %q", cfg.Database.Driver)
	}

	db, err := sql.Open(d.driverName, source)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.name, err)
	}

	if d.name == config.DriverSQLite {
		// One connection keeps :memory: databases and savepoints coherent.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	}

	store := &Store{
		db:              db,
		dialect:         d,
		path:            source,
		ignoreConflicts: cfg.Storage.IgnoreConflicts,
	}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the configured dialect name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// IgnoreConflicts reports whether bulk inserts skip duplicate-key rows.
func (s *Store) IgnoreConflicts() bool {
	return s.ignoreConflicts
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
