package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"consentsync/internal/logging"
	"consentsync/internal/model"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

// flush writes the buffered candidates. The batch is re-filtered against the
// identity caches and against earlier candidates of the same batch, then
// inserted in one transaction. Created rows are added to the caches.
func (b *Builder) flush(ctx context.Context, p *passState) error {
	if len(p.buffer) == 0 {
		return nil
	}
	batch := b.guard(p)
	p.buffer = p.buffer[:0]
	if len(batch) == 0 {
		return nil
	}

	if b.opts.DryRun {
		for _, identity := range batch {
			b.identities.add(identity)
		}
		p.stats.Created += len(batch)
		return nil
	}

	var created []model.Identity
	err := b.storage.Transact(ctx, func(tx Tx) error {
		rows, err := insertWithFallback(ctx, tx, b.tables.Identities, batch, p.logger)
		created = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("flush identities: %w", err)
	}

	for _, identity := range created {
		b.identities.add(identity)
	}
	p.stats.Created += len(created)
	p.stats.Dropped += len(batch) - len(created)
	p.logger.Debug("identity batch flushed",
		logging.Int("candidates", len(batch)),
		logging.Int("created", len(created)),
	)
	return nil
}

func (b *Builder) guard(p *passState) []model.Identity {
	emails := make(map[string]struct{}, len(p.buffer))
	phones := make(map[string]struct{}, len(p.buffer))
	kept := make([]model.Identity, 0, len(p.buffer))
	for _, c := range p.buffer {
		email, phone := c.identity.Email, c.identity.Phone
		reason := ""
		hasEmail, hasPhone := c.identity.HasEmail(), c.identity.HasPhone()
		switch {
		case hasEmail && b.identities.emailClaimed(email):
			reason = "email already claimed"
		case hasPhone && b.identities.phoneClaimed(phone):
			reason = "phone already claimed"
		case hasEmail && contains(emails, email):
			reason = "email repeated in batch"
		case hasPhone && contains(phones, phone):
			reason = "phone repeated in batch"
		}
		if reason != "" {
			p.stats.Dropped++
			b.decision(p, "drop", reason, logging.Int64("source_id", c.sourceID))
			continue
		}
		if hasEmail {
			emails[email] = struct{}{}
		}
		if hasPhone {
			phones[phone] = struct{}{}
		}
		kept = append(kept, c.identity)
	}
	return kept
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// insertWithFallback bulk-inserts rows inside a savepoint. When the bulk
// insert hits a unique constraint it is rolled back and every row is retried
// on its own; rows that still violate uniqueness are treated as existing.
func insertWithFallback(ctx context.Context, tx Tx, table schema.Handle, rows []model.Identity, logger *slog.Logger) ([]model.Identity, error) {
	var created []model.Identity
	err := tx.Savepoint(ctx, func(tx Tx) error {
		var err error
		created, err = tx.InsertIdentities(ctx, table, rows)
		return err
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, store.ErrUniqueViolation) {
		return nil, err
	}

	logger.Debug("bulk insert hit a unique constraint; inserting row by row", logging.Int("rows", len(rows)))
	created = make([]model.Identity, 0, len(rows))
	for _, row := range rows {
		var identity model.Identity
		err := tx.Savepoint(ctx, func(tx Tx) error {
			var err error
			identity, err = tx.InsertIdentity(ctx, table, row)
			return err
		})
		if errors.Is(err, store.ErrUniqueViolation) {
			logger.Debug("identity already exists",
				logging.String("email", row.Email),
				logging.String("phone", row.Phone),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		created = append(created, identity)
	}
	return created, nil
}
