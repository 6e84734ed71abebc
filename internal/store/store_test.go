package store_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/google/uuid"

	"consentsync/internal/model"
	"consentsync/internal/store"
	"consentsync/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	tables, err := st.Catalog(ctx)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	for _, want := range []string{"core_client", "core_subscriber", "core_subscribersms", "core_user", "schema_migrations"} {
		if !slices.Contains(tables, want) {
			t.Fatalf("expected table %s in catalog %v", want, tables)
		}
	}

	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != "0002_identity_indexes" {
		t.Fatalf("unexpected schema version %q", version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenStore(t, cfg)
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second := testsupport.MustOpenStore(t, cfg)
	if _, err := second.Catalog(context.Background()); err != nil {
		t.Fatalf("Catalog after reopen: %v", err)
	}
}

func TestStreamIsOrderedAndChunked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")

	var subs []model.EmailSubscription
	for i := 7; i >= 1; i-- {
		subs = append(subs, model.EmailSubscription{
			ID:        int64(i),
			Email:     fmt.Sprintf("user%d@example.com", i),
			Consent:   i%2 == 0,
			CreatedAt: testsupport.At(i),
		})
	}
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Emails: subs})

	var got []model.EmailSubscription
	err := st.StreamEmailSubscriptions(context.Background(), tables.EmailSubscriptions, 3, func(sub model.EmailSubscription) error {
		got = append(got, sub)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamEmailSubscriptions: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(got))
	}
	for i, sub := range got {
		if sub.ID != int64(i+1) {
			t.Fatalf("row %d has id %d; stream must be ordered by id", i, sub.ID)
		}
		if !sub.CreatedAt.Equal(testsupport.At(i + 1)) {
			t.Fatalf("row %d created_at = %v", i, sub.CreatedAt)
		}
		if sub.Consent != ((i+1)%2 == 0) {
			t.Fatalf("row %d consent = %v", i, sub.Consent)
		}
	}
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Phones: []model.PhoneSubscription{
		{ID: 1, Phone: "100", CreatedAt: testsupport.At(1)},
		{ID: 2, Phone: "200", CreatedAt: testsupport.At(2)},
	}})

	sentinel := errors.New("stop")
	calls := 0
	err := st.StreamPhoneSubscriptions(context.Background(), tables.PhoneSubscriptions, 1, func(model.PhoneSubscription) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one callback, got %d", calls)
	}
}

func TestCustomerNullsAndMissingTimestamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Customers: []model.CustomerRecord{
		{ID: 1, Email: "a@x.com"},
		{ID: 2, Phone: "555", CreatedAt: testsupport.At(3)},
	}})

	var got []model.CustomerRecord
	if err := st.StreamCustomers(context.Background(), tables.Customers, 0, func(c model.CustomerRecord) error {
		got = append(got, c)
		return nil
	}); err != nil {
		t.Fatalf("StreamCustomers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(got))
	}
	if got[0].Phone != "" || !got[0].CreatedAt.IsZero() {
		t.Fatalf("expected null phone and missing timestamp, got %+v", got[0])
	}
	if got[1].Email != "" || got[1].Phone != "555" {
		t.Fatalf("unexpected second customer %+v", got[1])
	}
}

func TestInsertIdentitiesIgnoresConflicts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Identities: []model.Identity{
		{ID: 1, Email: "taken@x.com", Consent: true, CreatedAt: testsupport.At(1)},
	}})

	ctx := context.Background()
	var created []model.Identity
	err := st.InTx(ctx, func(tx *store.Tx) error {
		var err error
		created, err = tx.InsertIdentities(ctx, tables.Identities, []model.Identity{
			{Email: "taken@x.com", Consent: false, CreatedAt: testsupport.At(5)},
			{Email: "new@x.com", Phone: "555", Consent: true, CreatedAt: testsupport.At(5)},
			{Phone: "777", Consent: false, CreatedAt: testsupport.At(5)},
		})
		return err
	})
	if err != nil {
		t.Fatalf("InsertIdentities: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created rows, got %d: %+v", len(created), created)
	}
	for _, identity := range created {
		if identity.ID == 0 {
			t.Fatalf("expected generated id, got %+v", identity)
		}
	}

	all := testsupport.MustIdentities(t, st, tables)
	if len(all) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(all))
	}
	if !all[0].Consent {
		t.Fatal("existing identity must not be overwritten by an ignored conflict")
	}
}

func TestInsertIdentitiesStrictModeReportsUniqueViolation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithIgnoreConflicts(false))
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Identities: []model.Identity{
		{ID: 1, Email: "taken@x.com", CreatedAt: testsupport.At(1)},
	}})

	ctx := context.Background()
	err := st.InTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertIdentities(ctx, tables.Identities, []model.Identity{
			{Email: "fresh@x.com"},
			{Email: "taken@x.com"},
		})
		return err
	})
	if !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if !store.IsUniqueViolation(err) {
		t.Fatal("IsUniqueViolation should accept the classified error")
	}
	if got := testsupport.MustIdentities(t, st, tables); len(got) != 1 {
		t.Fatalf("failed transaction must not leave rows behind, got %d", len(got))
	}
}

func TestSavepointRollsBackOnlyNestedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithIgnoreConflicts(false))
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")

	ctx := context.Background()
	var swallowed int
	err := st.InTx(ctx, func(tx *store.Tx) error {
		for _, email := range []string{"a@x.com", "a@x.com", "b@x.com"} {
			err := tx.Savepoint(ctx, func(tx *store.Tx) error {
				_, err := tx.InsertIdentity(ctx, tables.Identities, model.Identity{Email: email})
				return err
			})
			if errors.Is(err, store.ErrUniqueViolation) {
				swallowed++
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if swallowed != 1 {
		t.Fatalf("expected one swallowed violation, got %d", swallowed)
	}
	if got := testsupport.MustIdentities(t, st, tables); len(got) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(got))
	}
}

func TestPhoneIsNotUniqueAtStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithIgnoreConflicts(false))
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")

	ctx := context.Background()
	err := st.InTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertIdentities(ctx, tables.Identities, []model.Identity{{Phone: "555"}, {Phone: "555"}})
		return err
	})
	if err != nil {
		t.Fatalf("duplicate phones should be accepted by storage: %v", err)
	}
}

func TestUpdateConsentTouchesOnlyConsent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Identities: []model.Identity{
		{ID: 1, Email: "a@x.com", Consent: false, CreatedAt: testsupport.At(1)},
		{ID: 2, Phone: "555", Consent: true, CreatedAt: testsupport.At(2)},
		{ID: 3, Email: "c@x.com", Consent: false, CreatedAt: testsupport.At(3)},
	}})

	ctx := context.Background()
	var updated int64
	err := st.InTx(ctx, func(tx *store.Tx) error {
		var err error
		updated, err = tx.UpdateConsent(ctx, tables.Identities, []store.ConsentUpdate{
			{ID: 1, Consent: true},
			{ID: 2, Consent: false},
		})
		return err
	})
	if err != nil {
		t.Fatalf("UpdateConsent: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated rows, got %d", updated)
	}

	got := testsupport.MustIdentities(t, st, tables)
	if !got[0].Consent || got[1].Consent || got[2].Consent {
		t.Fatalf("unexpected consent values: %+v", got)
	}
	if got[0].Email != "a@x.com" || !got[0].CreatedAt.Equal(testsupport.At(1)) {
		t.Fatalf("other columns changed: %+v", got[0])
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")

	ctx := context.Background()
	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.InsertIdentity(ctx, tables.Identities, model.Identity{Email: "a@x.com"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := testsupport.MustIdentities(t, st, tables); len(got) != 0 {
		t.Fatalf("expected rollback, found %d identities", len(got))
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")

	ctx := context.Background()
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{Identities: []model.Identity{{ID: 10, Email: "old@x.com"}}})
	if _, err := st.UpsertIdentities(ctx, tables.Identities, []model.Identity{{ID: 10, Email: "new@x.com", Consent: true}}); err != nil {
		t.Fatalf("UpsertIdentities: %v", err)
	}
	got := testsupport.MustIdentities(t, st, tables)
	if len(got) != 1 || got[0].Email != "new@x.com" || !got[0].Consent {
		t.Fatalf("unexpected identities after upsert: %+v", got)
	}

	// Generated ids continue past seeded ones.
	var created model.Identity
	err := st.InTx(ctx, func(tx *store.Tx) error {
		var err error
		created, err = tx.InsertIdentity(ctx, tables.Identities, model.Identity{Email: "next@x.com"})
		return err
	})
	if err != nil {
		t.Fatalf("InsertIdentity: %v", err)
	}
	if created.ID <= 10 {
		t.Fatalf("expected id above seeded ids, got %d", created.ID)
	}
}

func TestCountsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, testsupport.Fixture{
		Emails:    []model.EmailSubscription{{ID: 1, Email: "a@x.com"}, {ID: 2, Email: "b@x.com"}},
		Customers: []model.CustomerRecord{{ID: 1, Email: "a@x.com"}},
	})

	ctx := context.Background()
	counts, err := st.Counts(ctx, tables)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := map[string]int64{"core_subscriber": 2, "core_subscribersms": 0, "core_client": 1, "core_user": 0}
	for _, c := range counts {
		if want[c.Handle.Table] != c.Rows {
			t.Fatalf("count for %s = %d, want %d", c.Handle.Table, c.Rows, want[c.Handle.Table])
		}
	}

	health, err := st.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Location != cfg.Database.Path {
		t.Fatalf("unexpected location %q", health.Location)
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPostgres())
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "core")

	ctx := context.Background()
	email := uuid.NewString() + "@example.com"
	for attempt := 0; attempt < 2; attempt++ {
		var created []model.Identity
		err := st.InTx(ctx, func(tx *store.Tx) error {
			var err error
			created, err = tx.InsertIdentities(ctx, tables.Identities, []model.Identity{{Email: email, Consent: true, CreatedAt: testsupport.At(1)}})
			return err
		})
		if err != nil {
			t.Fatalf("InsertIdentities attempt %d: %v", attempt, err)
		}
		want := 1
		if attempt == 1 {
			want = 0
		}
		if len(created) != want {
			t.Fatalf("attempt %d created %d rows, want %d", attempt, len(created), want)
		}
	}

	err := st.InTx(ctx, func(tx *store.Tx) error {
		return tx.Savepoint(ctx, func(tx *store.Tx) error {
			_, err := tx.InsertIdentity(ctx, tables.Identities, model.Identity{Email: email})
			return err
		})
	})
	if !errors.Is(err, store.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation from postgres, got %v", err)
	}
}
