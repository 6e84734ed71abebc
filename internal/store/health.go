package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"consentsync/internal/schema"
)

// TableCount is the row count of one resolved table.
type TableCount struct {
	Handle schema.Handle
	Rows   int64
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	Driver           string
	Location         string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	Tables           []string
	IntegrityCheck   bool
	Error            string
}

// Counts returns the row count of every resolved table.
func (s *Store) Counts(ctx context.Context, tables schema.Tables) ([]TableCount, error) {
	ctx = ensureContext(ctx)
	counts := make([]TableCount, 0, 4)
	for _, handle := range tables.All() {
		var n int64
		row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(handle.Table)))
		if err := row.Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", handle.Table, err)
		}
		counts = append(counts, TableCount{Handle: handle, Rows: n})
	}
	return counts, nil
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{
		Driver:   s.dialect.name,
		Location: s.location(),
	}

	if s.dialect.name == sqliteDialect.name && s.path != ":memory:" {
		info, err := os.Stat(s.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("database path %q is a directory", s.path)
		}
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.SchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	tables, err := s.Catalog(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.Tables = tables

	if s.dialect.numbered {
		var one int
		if err := s.db.QueryRowContext(connCtx, "SELECT 1").Scan(&one); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("integrity check: %w", err)
		}
		health.IntegrityCheck = one == 1
		return health, nil
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}

// location describes where the database lives without exposing credentials.
func (s *Store) location() string {
	if !s.dialect.numbered {
		return s.path
	}
	cfg, err := pgconn.ParseConfig(s.path)
	if err != nil {
		return "postgres (unparseable dsn)"
	}
	return fmt.Sprintf("postgres://%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
}
