package reconcile_test

import (
	"testing"

	"consentsync/internal/model"
	"consentsync/internal/testsupport"
)

func consentOf(t *testing.T, e *env, id int64) bool {
	t.Helper()
	for _, identity := range e.identities(t) {
		if identity.ID == id {
			return identity.Consent
		}
	}
	t.Fatalf("identity %d not found", id)
	return false
}

func TestBackfillEmailMatchNewerUpdates(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(5)}},
		Emails:     []model.EmailSubscription{{ID: 1, Email: "A@x.com", Consent: true, CreatedAt: testsupport.At(10)}},
	})

	stats := e.backfill(t)
	if stats.Updates != 1 || stats.Applied != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !consentOf(t, e, 1) {
		t.Fatal("expected consent to move to the newer subscription")
	}

	again := e.backfill(t)
	if again.Updates != 0 {
		t.Fatalf("second run must update nothing, got %+v", again)
	}
}

func TestBackfillIgnoresOlderAndMissingTimestamps(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{
			{ID: 1, Email: "old@x.com", Consent: false, CreatedAt: testsupport.At(5)},
			{ID: 2, Email: "nots@x.com", Consent: false, CreatedAt: testsupport.At(5)},
			{ID: 3, Email: "noid@x.com", Consent: false},
			{ID: 4, Phone: "555", Consent: true, CreatedAt: testsupport.At(5)},
		},
		Emails: []model.EmailSubscription{
			{ID: 1, Email: "old@x.com", Consent: true, CreatedAt: testsupport.At(1)},
			{ID: 2, Email: "nots@x.com", Consent: true},
			{ID: 3, Email: "noid@x.com", Consent: true, CreatedAt: testsupport.At(9)},
		},
		Phones: []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(5)}},
	})

	stats := e.backfill(t)
	if stats.Updates != 0 {
		t.Fatalf("expected no updates, got %+v", stats)
	}
}

func TestBackfillPhoneMatchUpdatesEveryIdentityOnPhone(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{
			{ID: 1, Phone: "555", Consent: true, CreatedAt: testsupport.At(5)},
			{ID: 2, Phone: "555", Consent: true, CreatedAt: testsupport.At(20)},
		},
		Phones: []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(10)}},
	})

	stats := e.backfill(t)
	if stats.Updates != 1 {
		t.Fatalf("expected only the older identity to update, got %+v", stats)
	}
	if consentOf(t, e, 1) || !consentOf(t, e, 2) {
		t.Fatal("unexpected consent values after phone backfill")
	}
}

func TestBackfillLastNewerSubscriptionWins(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(5)}},
		Emails: []model.EmailSubscription{
			{ID: 1, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(10)},
			{ID: 2, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(11)},
		},
	})

	stats := e.backfill(t)
	if stats.Updates != 0 {
		t.Fatalf("net unchanged consent must not be written, got %+v", stats)
	}
}

func TestBackfillMergeSupersedesSingleRules(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Phone: "555", Consent: false, CreatedAt: testsupport.At(5)}},
		Customers:  []model.CustomerRecord{{ID: 1, Email: "a@x.com", Phone: "555"}},
		Emails:     []model.EmailSubscription{{ID: 1, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(20)}},
		Phones:     []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(10)}},
	})

	// The phone rule alone would leave consent false; the merge picks the
	// later email subscription.
	stats := e.backfill(t)
	if stats.Merged != 1 || stats.Updates != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !consentOf(t, e, 1) {
		t.Fatal("expected merge to apply the latest subscription")
	}
	if again := e.backfill(t); again.Updates != 0 {
		t.Fatalf("merge must be idempotent, got %+v", again)
	}
}

func TestBackfillMergeOverridesSingleRulesWhenNothingNewer(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Phone: "555", Consent: false, CreatedAt: testsupport.At(10)}},
		Customers:  []model.CustomerRecord{{ID: 1, Email: "a@x.com", Phone: "555"}},
		Emails: []model.EmailSubscription{
			{ID: 1, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(5)},
			{ID: 2, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(20)},
		},
		Phones: []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(8)}},
	})

	// The email rule alone would pick subscription 2. The merge compares the
	// first subscription per key, finds nothing newer, and keeps consent.
	stats := e.backfill(t)
	if stats.Merged != 1 || stats.Updates != 0 || stats.Applied != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if consentOf(t, e, 1) {
		t.Fatal("merge must keep the stored consent when its pick is not newer")
	}
}

func TestBackfillMergeRequiresMatchingCustomer(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Phone: "555", Consent: false, CreatedAt: testsupport.At(5)}},
		Customers:  []model.CustomerRecord{{ID: 1, Email: "a@x.com", Phone: "999"}},
		Emails:     []model.EmailSubscription{{ID: 1, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(20)}},
		Phones:     []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(10)}},
	})

	stats := e.backfill(t)
	if stats.Merged != 0 {
		t.Fatalf("merge must not apply without a matching customer, got %+v", stats)
	}
	// Rules apply in order: the phone rule runs last and keeps consent false.
	if stats.Updates != 0 || consentOf(t, e, 1) {
		t.Fatalf("unexpected result %+v", stats)
	}
}

func TestBackfillMergeMissingTimestampFallsBackToIdentity(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Phone: "555", Consent: true, CreatedAt: testsupport.At(5)}},
		Customers:  []model.CustomerRecord{{ID: 1, Email: "a@x.com", Phone: "555"}},
		Emails:     []model.EmailSubscription{{ID: 1, Email: "a@x.com", Consent: false}},
		Phones:     []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(3)}},
	})

	stats := e.backfill(t)
	if stats.Merged != 1 || stats.Updates != 0 {
		t.Fatalf("missing or older timestamps must not change consent, got %+v", stats)
	}
}

func TestBackfillDryRunStagesWithoutWriting(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Identities: []model.Identity{{ID: 1, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(5)}},
		Emails:     []model.EmailSubscription{{ID: 1, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(10)}},
	})

	stats := e.backfill(t, dryRun)
	if !stats.DryRun || stats.Updates != 1 || stats.Applied != 0 {
		t.Fatalf("unexpected dry-run stats %+v", stats)
	}
	if consentOf(t, e, 1) {
		t.Fatal("dry run must not write")
	}
}

func TestBuildThenBackfillScenario(t *testing.T) {
	e := newEnv(t, testsupport.Fixture{
		Emails: []model.EmailSubscription{{ID: 1, Email: "a@x.com", Consent: true, CreatedAt: testsupport.At(10)}},
		Phones: []model.PhoneSubscription{{ID: 1, Phone: "555", Consent: false, CreatedAt: testsupport.At(5)}},
	})

	e.build(t)
	identities := e.identities(t)
	if len(identities) != 2 {
		t.Fatalf("expected separate email and phone identities, got %+v", identities)
	}
	email, _ := findByEmail(identities, "a@x.com")
	if !email.Consent || email.Phone != "" {
		t.Fatalf("unexpected email identity %+v", email)
	}

	// New identities are stamped after every legacy row, so nothing is newer.
	if stats := e.backfill(t); stats.Updates != 0 {
		t.Fatalf("expected no backfill after a fresh build, got %+v", stats)
	}
}
