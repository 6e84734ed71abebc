package store

import (
	"context"
	"fmt"
)

// Catalog lists the base tables visible to the connection.
func (s *Store) Catalog(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), s.dialect.catalogQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
