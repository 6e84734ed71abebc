package preflight

import (
	"context"

	"consentsync/internal/config"
	"consentsync/internal/store"
)

// MinReportFreeBytes is the free space below which the report volume check fails.
const MinReportFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Database is the storage surface the database and schema checks use.
type Database interface {
	CheckHealth(ctx context.Context) (store.DatabaseHealth, error)
	Catalog(ctx context.Context) ([]string, error)
}

// RunAll executes every preflight check for the given config. db may be nil
// when the database could not be opened; openErr then explains why.
func RunAll(ctx context.Context, cfg *config.Config, db Database, openErr error) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Report directory", cfg.Paths.ReportDir))

	// Log directory (when configured)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	results = append(results, CheckFreeSpace("Report volume", cfg.Paths.ReportDir, MinReportFreeBytes))

	if db == nil {
		detail := "not opened"
		if openErr != nil {
			detail = openErr.Error()
		}
		results = append(results,
			Result{Name: "Database", Detail: detail},
			Result{Name: "Schema", Detail: "skipped (database unavailable)"},
		)
		return results
	}

	results = append(results, CheckDatabase(ctx, db))
	results = append(results, CheckSchema(ctx, db, cfg.Schema.Namespace))
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
