package store

import (
	"context"
	"database/sql"
	"fmt"

	"consentsync/internal/model"
	"consentsync/internal/schema"
)

// DefaultChunkSize is used when callers pass a non-positive chunk size.
const DefaultChunkSize = 1000

const (
	emailSubscriptionColumns = "id, email, gdpr_consent, create_date"
	phoneSubscriptionColumns = "id, phone, gdpr_consent, create_date"
	customerColumns          = "id, email, phone, create_date"
	identityColumns          = "id, email, phone, gdpr_consent, create_date"
)

// streamTable reads table in id order, chunkSize rows at a time, invoking fn
// for each row. Each chunk is fully read and its cursor closed before fn runs.
func streamTable[T any](
	ctx context.Context,
	s *Store,
	table schema.Handle,
	columns string,
	chunkSize int,
	scan func(*sql.Rows) (T, int64, error),
	fn func(T) error,
) error {
	ctx = ensureContext(ctx)
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	query := s.dialect.rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE id > ? ORDER BY id LIMIT ?",
		columns, quoteIdent(table.Table),
	))

	var lastID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := make([]T, 0, chunkSize)
		from := lastID
		err := retryOnBusy(ctx, func() error {
			chunk = chunk[:0]
			lastID = from
			rows, err := s.db.QueryContext(ctx, query, from, chunkSize)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				item, id, err := scan(rows)
				if err != nil {
					return err
				}
				chunk = append(chunk, item)
				lastID = id
			}
			return rows.Err()
		})
		if err != nil {
			return fmt.Errorf("stream %s: %w", table.Table, err)
		}
		for _, item := range chunk {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(chunk) < chunkSize {
			return nil
		}
	}
}

// StreamEmailSubscriptions visits every email subscription in id order.
func (s *Store) StreamEmailSubscriptions(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.EmailSubscription) error) error {
	return streamTable(ctx, s, table, emailSubscriptionColumns, chunkSize, scanEmailSubscription, fn)
}

// StreamPhoneSubscriptions visits every phone subscription in id order.
func (s *Store) StreamPhoneSubscriptions(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.PhoneSubscription) error) error {
	return streamTable(ctx, s, table, phoneSubscriptionColumns, chunkSize, scanPhoneSubscription, fn)
}

// StreamCustomers visits every customer record in id order.
func (s *Store) StreamCustomers(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.CustomerRecord) error) error {
	return streamTable(ctx, s, table, customerColumns, chunkSize, scanCustomer, fn)
}

// StreamIdentities visits every identity in id order.
func (s *Store) StreamIdentities(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.Identity) error) error {
	return streamTable(ctx, s, table, identityColumns, chunkSize, scanIdentity, fn)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmailSubscription(rows *sql.Rows) (model.EmailSubscription, int64, error) {
	var (
		sub     model.EmailSubscription
		email   sql.NullString
		created any
	)
	if err := rows.Scan(&sub.ID, &email, &sub.Consent, &created); err != nil {
		return sub, 0, err
	}
	sub.Email = email.String
	sub.CreatedAt = decodeTime(created)
	return sub, sub.ID, nil
}

func scanPhoneSubscription(rows *sql.Rows) (model.PhoneSubscription, int64, error) {
	var (
		sub     model.PhoneSubscription
		phone   sql.NullString
		created any
	)
	if err := rows.Scan(&sub.ID, &phone, &sub.Consent, &created); err != nil {
		return sub, 0, err
	}
	sub.Phone = phone.String
	sub.CreatedAt = decodeTime(created)
	return sub, sub.ID, nil
}

func scanCustomer(rows *sql.Rows) (model.CustomerRecord, int64, error) {
	var (
		rec          model.CustomerRecord
		email, phone sql.NullString
		created      any
	)
	if err := rows.Scan(&rec.ID, &email, &phone, &created); err != nil {
		return rec, 0, err
	}
	rec.Email = email.String
	rec.Phone = phone.String
	rec.CreatedAt = decodeTime(created)
	return rec, rec.ID, nil
}

func scanIdentity(rows *sql.Rows) (model.Identity, int64, error) {
	identity, err := scanIdentityRow(rows)
	return identity, identity.ID, err
}

func scanIdentityRow(row rowScanner) (model.Identity, error) {
	var (
		identity     model.Identity
		email, phone sql.NullString
		created      any
	)
	if err := row.Scan(&identity.ID, &email, &phone, &identity.Consent, &created); err != nil {
		return identity, err
	}
	identity.Email = email.String
	identity.Phone = phone.String
	identity.CreatedAt = decodeTime(created)
	return identity, nil
}
