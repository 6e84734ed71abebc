package store

import (
	"strconv"
	"strings"

	"consentsync/internal/config"
)

type dialect struct {
	name       string
	driverName string
	// numbered reports whether placeholders are $1..$n instead of ?.
	numbered      bool
	catalogQuery  string
	migrationsDir string
}

var (
	sqliteDialect = dialect{
		name:          config.DriverSQLite,
		driverName:    "sqlite",
		catalogQuery:  "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
		migrationsDir: "migrations/sqlite",
	}
	postgresDialect = dialect{
		name:          config.DriverPostgres,
		driverName:    "pgx",
		numbered:      true,
		catalogQuery:  "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name",
		migrationsDir: "migrations/postgres",
	}
)

// rebind rewrites ? placeholders into the dialect's native form. Queries in
// this package never carry literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "(?, ?, ...)" groups for a multi-row VALUES clause.
func placeholders(rows, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(group)
	}
	return b.String()
}

// quoteIdent quotes a catalog-derived table name. Names reaching this point
// have already been validated by the schema registry.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
