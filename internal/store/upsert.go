package store

import (
	"context"
	"fmt"
	"strings"

	"consentsync/internal/model"
	"consentsync/internal/schema"
)

// upsertSpec describes an insert-or-update by primary key.
type upsertSpec struct {
	table   schema.Handle
	columns []string
	rows    [][]any
}

func (s *Store) upsert(ctx context.Context, spec upsertSpec) (int, error) {
	if len(spec.rows) == 0 {
		return 0, nil
	}
	cols := len(spec.columns)
	updates := make([]string, 0, cols-1)
	for _, col := range spec.columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		for start := 0; start < len(spec.rows); start += maxRowsPerStatement {
			end := min(start+maxRowsPerStatement, len(spec.rows))
			batch := spec.rows[start:end]
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (id) DO UPDATE SET %s",
				quoteIdent(spec.table.Table),
				strings.Join(spec.columns, ", "),
				placeholders(len(batch), cols),
				strings.Join(updates, ", "),
			)
			args := make([]any, 0, len(batch)*cols)
			for _, row := range batch {
				args = append(args, row...)
			}
			if _, err := tx.tx.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
				return fmt.Errorf("upsert %s: %w", spec.table.Table, classify(err))
			}
		}
		if s.dialect.numbered {
			// Explicit ids do not advance a serial sequence.
			query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 1))",
				spec.table.Table, quoteIdent(spec.table.Table))
			if _, err := tx.tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("advance %s id sequence: %w", spec.table.Table, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(spec.rows), nil
}

// UpsertEmailSubscriptions inserts or replaces email subscriptions by id.
func (s *Store) UpsertEmailSubscriptions(ctx context.Context, table schema.Handle, subs []model.EmailSubscription) (int, error) {
	rows := make([][]any, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, []any{sub.ID, sub.Email, sub.Consent, s.dialect.timeArg(sub.CreatedAt)})
	}
	return s.upsert(ctx, upsertSpec{table: table, columns: []string{"id", "email", "gdpr_consent", "create_date"}, rows: rows})
}

// UpsertPhoneSubscriptions inserts or replaces phone subscriptions by id.
func (s *Store) UpsertPhoneSubscriptions(ctx context.Context, table schema.Handle, subs []model.PhoneSubscription) (int, error) {
	rows := make([][]any, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, []any{sub.ID, sub.Phone, sub.Consent, s.dialect.timeArg(sub.CreatedAt)})
	}
	return s.upsert(ctx, upsertSpec{table: table, columns: []string{"id", "phone", "gdpr_consent", "create_date"}, rows: rows})
}

// UpsertCustomers inserts or replaces customer records by id.
func (s *Store) UpsertCustomers(ctx context.Context, table schema.Handle, customers []model.CustomerRecord) (int, error) {
	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []any{c.ID, nullable(c.Email), nullable(c.Phone), s.dialect.timeArg(c.CreatedAt)})
	}
	return s.upsert(ctx, upsertSpec{table: table, columns: []string{"id", "email", "phone", "create_date"}, rows: rows})
}

// UpsertIdentities inserts or replaces identities by id.
func (s *Store) UpsertIdentities(ctx context.Context, table schema.Handle, identities []model.Identity) (int, error) {
	rows := make([][]any, 0, len(identities))
	for _, identity := range identities {
		rows = append(rows, []any{identity.ID, nullable(identity.Email), nullable(identity.Phone), identity.Consent, s.dialect.timeArg(identity.CreatedAt)})
	}
	return s.upsert(ctx, upsertSpec{table: table, columns: []string{"id", "email", "phone", "gdpr_consent", "create_date"}, rows: rows})
}
