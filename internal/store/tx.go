package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"consentsync/internal/model"
	"consentsync/internal/schema"
)

// maxRowsPerStatement bounds multi-row statements below every driver's
// bind parameter limit.
const maxRowsPerStatement = 500

// Tx is a unit of work opened by InTx.
type Tx struct {
	tx              *sql.Tx
	dialect         dialect
	ignoreConflicts bool
	savepoints      int
}

// ConsentUpdate stages a new consent value for one identity.
type ConsentUpdate struct {
	ID      int64
	Consent bool
}

// InTx runs fn inside a single transaction. The transaction commits only if
// fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	var sqlTx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var err error
		sqlTx, err = s.db.BeginTx(ctx, nil)
		return err
	}); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	tx := &Tx{tx: sqlTx, dialect: s.dialect, ignoreConflicts: s.ignoreConflicts}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Savepoint runs fn as a nested atomic section. When fn fails, its writes are
// rolled back and the enclosing transaction stays usable.
func (t *Tx) Savepoint(ctx context.Context, fn func(*Tx) error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(t); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rbErr))
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("release savepoint %s: %w", name, relErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// InsertIdentities bulk-inserts identities and returns the rows that were
// created. With ignore_conflicts enabled, rows rejected by a unique
// constraint are skipped; otherwise any violation fails the call with
// ErrUniqueViolation.
func (t *Tx) InsertIdentities(ctx context.Context, table schema.Handle, identities []model.Identity) ([]model.Identity, error) {
	created := make([]model.Identity, 0, len(identities))
	for start := 0; start < len(identities); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(identities))
		batch := identities[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (email, phone, gdpr_consent, create_date) VALUES %s",
			quoteIdent(table.Table), placeholders(len(batch), 4))
		if t.ignoreConflicts {
			b.WriteString(" ON CONFLICT DO NOTHING")
		}
		b.WriteString(" RETURNING " + identityColumns)

		args := make([]any, 0, len(batch)*4)
		for _, identity := range batch {
			args = append(args, t.identityArgs(identity)...)
		}

		rows, err := t.tx.QueryContext(ctx, t.dialect.rebind(b.String()), args...)
		if err != nil {
			return nil, fmt.Errorf("insert identities: %w", classify(err))
		}
		for rows.Next() {
			identity, err := scanIdentityRow(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan inserted identity: %w", err)
			}
			created = append(created, identity)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("insert identities: %w", classify(err))
		}
	}
	return created, nil
}

// InsertIdentity inserts one identity. A unique constraint rejection returns
// an error matching ErrUniqueViolation.
func (t *Tx) InsertIdentity(ctx context.Context, table schema.Handle, identity model.Identity) (model.Identity, error) {
	query := fmt.Sprintf("INSERT INTO %s (email, phone, gdpr_consent, create_date) VALUES (?, ?, ?, ?) RETURNING %s",
		quoteIdent(table.Table), identityColumns)
	row := t.tx.QueryRowContext(ctx, t.dialect.rebind(query), t.identityArgs(identity)...)
	created, err := scanIdentityRow(row)
	if err != nil {
		return model.Identity{}, fmt.Errorf("insert identity: %w", classify(err))
	}
	return created, nil
}

// UpdateConsent applies consent values in bulk, touching only the consent
// column. It returns the number of rows updated.
func (t *Tx) UpdateConsent(ctx context.Context, table schema.Handle, updates []ConsentUpdate) (int64, error) {
	byValue := map[bool][]int64{}
	for _, update := range updates {
		byValue[update.Consent] = append(byValue[update.Consent], update.ID)
	}

	var total int64
	for _, consent := range []bool{true, false} {
		ids := byValue[consent]
		for start := 0; start < len(ids); start += maxRowsPerStatement {
			end := min(start+maxRowsPerStatement, len(ids))
			chunk := ids[start:end]

			query := fmt.Sprintf("UPDATE %s SET gdpr_consent = ? WHERE id IN (%s)",
				quoteIdent(table.Table), strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", "))
			args := make([]any, 0, len(chunk)+1)
			args = append(args, consent)
			for _, id := range chunk {
				args = append(args, id)
			}
			res, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
			if err != nil {
				return total, fmt.Errorf("update consent: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				total += n
			}
		}
	}
	return total, nil
}

func (t *Tx) identityArgs(identity model.Identity) []any {
	return []any{
		nullable(identity.Email),
		nullable(identity.Phone),
		identity.Consent,
		t.dialect.timeArg(identity.CreatedAt),
	}
}
