package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"consentsync/internal/logging"
	"consentsync/internal/model"
	"consentsync/internal/normalize"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

// Backfill rule names recorded in decision logs.
const (
	RuleEmail = "email_match"
	RulePhone = "phone_match"
	RuleMerge = "merge"
)

// BackfillStats summarizes a consent backfill.
type BackfillStats struct {
	// Identities is the number of identities evaluated.
	Identities int
	// Updates is the number of identities whose consent changes.
	Updates int
	// Merged counts identities decided by the merge rule.
	Merged int
	// Applied is the number of rows the storage reported as updated.
	Applied  int64
	DryRun   bool
	Duration time.Duration
}

// Backfill moves newer legacy consent onto existing identities.
type Backfill struct {
	storage Storage
	tables  schema.Tables
	opts    Options
	logger  *slog.Logger
}

// NewBackfill constructs a Backfill over resolved tables.
func NewBackfill(storage Storage, tables schema.Tables, opts Options, logger *slog.Logger) *Backfill {
	return &Backfill{
		storage: storage,
		tables:  tables,
		opts:    opts.withDefaults(),
		logger:  logging.NewComponentLogger(logger, "consent-backfill"),
	}
}

type backfillSources struct {
	identities []model.Identity
	// Subscriptions per normalized key, in id order.
	emailSubs map[string][]model.EmailSubscription
	phoneSubs map[string][]model.PhoneSubscription
	customers *customerIndex
}

// Run evaluates every identity and applies the staged consent changes in one
// transaction. Running it again with unchanged inputs updates nothing.
func (b *Backfill) Run(ctx context.Context) (BackfillStats, error) {
	started := time.Now()
	stats := BackfillStats{DryRun: b.opts.DryRun}

	src, err := b.load(ctx)
	if err != nil {
		return stats, err
	}
	stats.Identities = len(src.identities)

	updates := make([]store.ConsentUpdate, 0)
	for _, identity := range src.identities {
		consent, rule, merged := evaluateConsent(identity, src)
		if merged {
			stats.Merged++
		}
		if consent == identity.Consent {
			continue
		}
		updates = append(updates, store.ConsentUpdate{ID: identity.ID, Consent: consent})
		b.logger.Debug("consent staged",
			logging.Args(append(logging.DecisionAttrs("consent_backfill", "update", rule),
				logging.Int64("identity_id", identity.ID),
				logging.Bool("consent", consent),
			)...)...)
	}
	stats.Updates = len(updates)

	if !b.opts.DryRun && len(updates) > 0 {
		err := b.storage.Transact(ctx, func(tx Tx) error {
			n, err := tx.UpdateConsent(ctx, b.tables.Identities, updates)
			stats.Applied = n
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("apply consent updates: %w", err)
		}
	}

	stats.Duration = time.Since(started)
	b.logger.Info("consent backfill complete",
		logging.Int("identities", stats.Identities),
		logging.Int("updated", stats.Updates),
		logging.Int("merged", stats.Merged),
		logging.Bool("dry_run", stats.DryRun),
		logging.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (b *Backfill) load(ctx context.Context) (*backfillSources, error) {
	src := &backfillSources{
		emailSubs: make(map[string][]model.EmailSubscription),
		phoneSubs: make(map[string][]model.PhoneSubscription),
	}
	err := b.storage.StreamIdentities(ctx, b.tables.Identities, b.opts.ChunkSize, func(identity model.Identity) error {
		src.identities = append(src.identities, identity)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	err = b.storage.StreamEmailSubscriptions(ctx, b.tables.EmailSubscriptions, b.opts.ChunkSize, func(sub model.EmailSubscription) error {
		if key := normalize.Email(sub.Email); key != "" {
			src.emailSubs[key] = append(src.emailSubs[key], sub)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load email subscriptions: %w", err)
	}
	err = b.storage.StreamPhoneSubscriptions(ctx, b.tables.PhoneSubscriptions, b.opts.ChunkSize, func(sms model.PhoneSubscription) error {
		if key := normalize.Phone(sms.Phone); key != "" {
			src.phoneSubs[key] = append(src.phoneSubs[key], sms)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load phone subscriptions: %w", err)
	}
	src.customers, err = loadCustomerIndex(ctx, b.storage, b.tables.Customers, b.opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// evaluateConsent returns the consent an identity should carry, the rule
// that decided it, and whether the merge rule applied.
func evaluateConsent(identity model.Identity, src *backfillSources) (bool, string, bool) {
	consent := identity.Consent
	rule := ""
	email := normalize.Email(identity.Email)
	phone := normalize.Phone(identity.Phone)

	if email != "" {
		for _, sub := range src.emailSubs[email] {
			if model.NewerThan(sub.CreatedAt, identity.CreatedAt) {
				consent, rule = sub.Consent, RuleEmail
			}
		}
	}
	if phone != "" {
		for _, sms := range src.phoneSubs[phone] {
			if model.NewerThan(sms.CreatedAt, identity.CreatedAt) {
				consent, rule = sms.Consent, RulePhone
			}
		}
	}

	if email == "" || phone == "" {
		return consent, rule, false
	}
	customer, ok := src.customers.byEmail[email]
	if !ok || normalize.Phone(customer.Phone) != phone {
		return consent, rule, false
	}
	subs, smsList := src.emailSubs[email], src.phoneSubs[phone]
	if len(subs) == 0 || len(smsList) == 0 {
		return consent, rule, false
	}

	// Once the merge applies, rules 1 and 2 no longer decide. Consent only
	// moves when the merge's pick is newer than the identity. Missing
	// timestamps compare as the identity's own creation time; ties go to the
	// email subscription.
	sub, sms := subs[0], smsList[0]
	subKey, smsKey := orFallback(sub.CreatedAt, identity.CreatedAt), orFallback(sms.CreatedAt, identity.CreatedAt)
	latestConsent, latestKey := sub.Consent, subKey
	if smsKey.After(subKey) {
		latestConsent, latestKey = sms.Consent, smsKey
	}
	if model.NewerThan(latestKey, identity.CreatedAt) {
		return latestConsent, RuleMerge, true
	}
	return identity.Consent, RuleMerge, true
}

func orFallback(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
