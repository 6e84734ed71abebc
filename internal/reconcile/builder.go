package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"consentsync/internal/logging"
	"consentsync/internal/model"
	"consentsync/internal/normalize"
	"consentsync/internal/report"
	"consentsync/internal/schema"
)

// Pass names.
const (
	PassEmailFirst = "email_first"
	PassPhoneFirst = "phone_first"
)

// PassStats summarizes one builder pass.
type PassStats struct {
	Pass string
	// Seen is the number of subscription rows visited.
	Seen int
	// Created counts identities written (or planned, in a dry run).
	Created int
	// Skipped counts rows already represented or blocked by a non-unique phone.
	Skipped int
	// Conflicts counts rows routed to a conflict report.
	Conflicts int
	// NonUnique counts rows blocked by a non-unique customer phone.
	NonUnique int
	// Dropped counts candidates discarded by the pre-flush guard or by
	// storage uniqueness.
	Dropped  int
	Duration time.Duration
}

// BuildResult holds the stats of both passes.
type BuildResult struct {
	EmailFirst PassStats
	PhoneFirst PassStats
	DryRun     bool
}

// Builder creates unified identities from the legacy subscription sources.
type Builder struct {
	storage Storage
	tables  schema.Tables
	reports report.Writer
	opts    Options
	logger  *slog.Logger

	customers  *customerIndex
	identities *identityIndex
}

// NewBuilder constructs a Builder over resolved tables.
func NewBuilder(storage Storage, tables schema.Tables, reports report.Writer, opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		storage: storage,
		tables:  tables,
		reports: reports,
		opts:    opts.withDefaults(),
		logger:  logging.NewComponentLogger(logger, "identity-builder"),
	}
}

type candidate struct {
	identity model.Identity
	sourceID int64
}

type passState struct {
	name   string
	stats  PassStats
	buffer []candidate
	logger *slog.Logger
}

// Run executes the email-first pass and then the phone-first pass.
func (b *Builder) Run(ctx context.Context) (BuildResult, error) {
	result := BuildResult{DryRun: b.opts.DryRun}
	if err := b.prepare(ctx); err != nil {
		return result, err
	}

	emailStats, err := b.runEmailPass(ctx)
	result.EmailFirst = emailStats
	if err != nil {
		return result, err
	}

	if !b.opts.DryRun {
		// Later passes must see identities written by earlier ones.
		identities, err := loadIdentityIndex(ctx, b.storage, b.tables.Identities, b.opts.ChunkSize)
		if err != nil {
			return result, err
		}
		b.identities = identities
	}

	phoneStats, err := b.runPhonePass(ctx)
	result.PhoneFirst = phoneStats
	return result, err
}

func (b *Builder) prepare(ctx context.Context) error {
	if err := report.EnsureAll(b.reports); err != nil {
		return fmt.Errorf("prepare reports: %w", err)
	}
	customers, err := loadCustomerIndex(ctx, b.storage, b.tables.Customers, b.opts.ChunkSize)
	if err != nil {
		return err
	}
	identities, err := loadIdentityIndex(ctx, b.storage, b.tables.Identities, b.opts.ChunkSize)
	if err != nil {
		return err
	}
	b.customers = customers
	b.identities = identities
	b.logger.Info("lookups prepared",
		logging.Int("customers", customers.total),
		logging.Int("non_unique_phones", len(customers.nonUnique)),
		logging.Int("identities", identities.size()),
		logging.Bool("dry_run", b.opts.DryRun),
	)
	return nil
}

func (b *Builder) newPass(name string) *passState {
	return &passState{
		name:   name,
		stats:  PassStats{Pass: name},
		buffer: make([]candidate, 0, b.opts.BatchSize),
		logger: b.logger.With(logging.String(logging.FieldPass, name)),
	}
}

func (b *Builder) runEmailPass(ctx context.Context) (PassStats, error) {
	started := time.Now()
	p := b.newPass(PassEmailFirst)
	err := b.storage.StreamEmailSubscriptions(ctx, b.tables.EmailSubscriptions, b.opts.ChunkSize, func(sub model.EmailSubscription) error {
		p.stats.Seen++
		if err := b.evaluateEmailSubscription(p, sub); err != nil {
			return err
		}
		return b.maybeFlush(ctx, p)
	})
	if err == nil {
		err = b.flush(ctx, p)
	}
	return b.finishPass(p, started, err)
}

func (b *Builder) runPhonePass(ctx context.Context) (PassStats, error) {
	started := time.Now()
	p := b.newPass(PassPhoneFirst)
	err := b.storage.StreamPhoneSubscriptions(ctx, b.tables.PhoneSubscriptions, b.opts.ChunkSize, func(sms model.PhoneSubscription) error {
		p.stats.Seen++
		if err := b.evaluatePhoneSubscription(p, sms); err != nil {
			return err
		}
		return b.maybeFlush(ctx, p)
	})
	if err == nil {
		err = b.flush(ctx, p)
	}
	return b.finishPass(p, started, err)
}

func (b *Builder) finishPass(p *passState, started time.Time, err error) (PassStats, error) {
	p.stats.Duration = time.Since(started)
	if err != nil {
		return p.stats, fmt.Errorf("%s pass: %w", p.name, err)
	}
	p.logger.Info("pass complete",
		logging.Int("created", p.stats.Created),
		logging.Int("skipped", p.stats.Skipped),
		logging.Int("conflicts", p.stats.Conflicts),
		logging.Int("non_unique", p.stats.NonUnique),
		logging.Int("dropped", p.stats.Dropped),
		logging.Duration("duration", p.stats.Duration),
	)
	return p.stats, nil
}

// evaluateEmailSubscription applies the email-first rules to one row.
func (b *Builder) evaluateEmailSubscription(p *passState, sub model.EmailSubscription) error {
	email := normalize.Email(sub.Email)
	source := logging.Int64("subscriber_id", sub.ID)
	if email == "" {
		p.stats.Skipped++
		b.decision(p, "skip", "missing email", source)
		return nil
	}
	if b.identities.emailClaimed(email) {
		p.stats.Skipped++
		b.decision(p, "skip", "email already claimed", source)
		return nil
	}

	customer, ok := b.customers.byEmail[email]
	if !ok {
		b.enqueue(p, sub.ID, model.Identity{Email: email, Consent: sub.Consent})
		b.decision(p, "create", "no customer match", source)
		return nil
	}

	phone := normalize.Phone(customer.Phone)
	if b.customers.phoneIsNonUnique(phone) {
		if err := b.reports.Append(report.NonUniqueClientPhones, nonUniqueRow(customer)); err != nil {
			return err
		}
		p.stats.Skipped++
		p.stats.NonUnique++
		b.decision(p, "non_unique", "customer phone shared by several customers", source, logging.Int64("client_id", customer.ID))
		return nil
	}

	if phone != "" {
		for _, existing := range b.identities.byPhone[phone] {
			if normalize.Email(existing.Email) != email {
				row := []string{formatID(sub.ID), sub.Email, customer.Phone, customer.Email}
				if err := b.reports.Append(report.SubscriberConflicts, row); err != nil {
					return err
				}
				p.stats.Conflicts++
				b.decision(p, "conflict", "customer phone claimed by a different email", source,
					logging.Int64("client_id", customer.ID), logging.Int64("identity_id", existing.ID))
				return nil
			}
		}
	}

	b.enqueue(p, sub.ID, model.Identity{Email: email, Phone: phone, Consent: sub.Consent})
	b.decision(p, "create", "unique customer match", source, logging.Int64("client_id", customer.ID))
	return nil
}

// evaluatePhoneSubscription applies the phone-first rules to one row.
//
// The reverse conflict only fires when the identity owning the customer's
// email carries a different non-null phone. An identity with that email and
// no phone does not conflict; the candidate is then dropped by the pre-flush
// guard because the email is already claimed.
func (b *Builder) evaluatePhoneSubscription(p *passState, sms model.PhoneSubscription) error {
	phone := normalize.Phone(sms.Phone)
	source := logging.Int64("subscribersms_id", sms.ID)
	if phone == "" {
		p.stats.Skipped++
		b.decision(p, "skip", "missing phone", source)
		return nil
	}
	if b.identities.phoneClaimed(phone) {
		p.stats.Skipped++
		b.decision(p, "skip", "phone already claimed", source)
		return nil
	}

	customers := b.customers.byPhone[phone]
	if len(customers) == 0 {
		b.enqueue(p, sms.ID, model.Identity{Phone: phone, Consent: sms.Consent})
		b.decision(p, "create", "no customer match", source)
		return nil
	}

	if b.customers.phoneIsNonUnique(phone) {
		for _, customer := range customers {
			if err := b.reports.Append(report.NonUniqueClientPhones, nonUniqueRow(customer)); err != nil {
				return err
			}
		}
		p.stats.Skipped++
		p.stats.NonUnique++
		b.decision(p, "non_unique", "phone shared by several customers", source, logging.Int("customers", len(customers)))
		return nil
	}

	customer := customers[0]
	email := normalize.Email(customer.Email)
	if existing, ok := b.identities.byEmail[email]; ok && email != "" {
		if existingPhone := normalize.Phone(existing.Phone); existingPhone != "" && existingPhone != phone {
			row := []string{formatID(sms.ID), sms.Phone, customer.Phone, customer.Email}
			if err := b.reports.Append(report.SubscriberSMSConflicts, row); err != nil {
				return err
			}
			p.stats.Conflicts++
			b.decision(p, "conflict", "customer email claimed with a different phone", source,
				logging.Int64("client_id", customer.ID), logging.Int64("identity_id", existing.ID))
			return nil
		}
	}

	b.enqueue(p, sms.ID, model.Identity{Email: email, Phone: phone, Consent: sms.Consent})
	b.decision(p, "create", "unique customer match", source, logging.Int64("client_id", customer.ID))
	return nil
}

func (b *Builder) enqueue(p *passState, sourceID int64, identity model.Identity) {
	identity.CreatedAt = b.opts.Now().UTC()
	p.buffer = append(p.buffer, candidate{identity: identity, sourceID: sourceID})
}

func (b *Builder) maybeFlush(ctx context.Context, p *passState) error {
	if len(p.buffer) < b.opts.BatchSize {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.flush(ctx, p)
}

func (b *Builder) decision(p *passState, result, reason string, attrs ...logging.Attr) {
	if !p.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	all := append(logging.DecisionAttrs("identity_create", result, reason), attrs...)
	p.logger.Debug("subscription evaluated", logging.Args(all...)...)
}

func nonUniqueRow(c model.CustomerRecord) []string {
	return []string{formatID(c.ID), c.Phone, c.Email}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
