// Package reconcile merges legacy contact-consent sources into unified
// identities.
//
// The Builder runs two passes. The email-first pass walks email
// subscriptions and the phone-first pass walks SMS subscriptions, each
// matched against the customer registry. Every record is skipped as already
// represented, turned into an identity candidate, or routed to a report sink
// as a conflict or an ambiguous (non-unique) customer phone. Candidates are
// buffered and flushed in batches; each flush re-checks the batch against the
// in-memory identity caches and runs in one transaction, falling back to
// row-at-a-time inserts when the bulk insert hits a unique constraint.
//
// The Backfill runs afterwards and moves consent flags onto existing
// identities when a matching legacy record is strictly newer, with a merge
// rule for identities backed by both an email and a phone subscription.
//
// Both components take already-resolved schema.Tables; neither resolves
// entity names itself.
package reconcile
