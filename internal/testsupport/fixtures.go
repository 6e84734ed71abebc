package testsupport

import (
	"context"
	"testing"
	"time"

	"consentsync/internal/model"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

// Epoch anchors fixture timestamps.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// At returns Epoch shifted by n minutes.
func At(n int) time.Time {
	return Epoch.Add(time.Duration(n) * time.Minute)
}

// Fixture holds rows to load into the legacy and identity tables.
type Fixture struct {
	Emails     []model.EmailSubscription
	Phones     []model.PhoneSubscription
	Customers  []model.CustomerRecord
	Identities []model.Identity
}

// MustSeed upserts every fixture row.
func MustSeed(t testing.TB, st *store.Store, tables schema.Tables, fx Fixture) {
	t.Helper()

	ctx := context.Background()
	if _, err := st.UpsertEmailSubscriptions(ctx, tables.EmailSubscriptions, fx.Emails); err != nil {
		t.Fatalf("seed email subscriptions: %v", err)
	}
	if _, err := st.UpsertPhoneSubscriptions(ctx, tables.PhoneSubscriptions, fx.Phones); err != nil {
		t.Fatalf("seed phone subscriptions: %v", err)
	}
	if _, err := st.UpsertCustomers(ctx, tables.Customers, fx.Customers); err != nil {
		t.Fatalf("seed customers: %v", err)
	}
	if _, err := st.UpsertIdentities(ctx, tables.Identities, fx.Identities); err != nil {
		t.Fatalf("seed identities: %v", err)
	}
}

// MustIdentities returns every identity in id order.
func MustIdentities(t testing.TB, st *store.Store, tables schema.Tables) []model.Identity {
	t.Helper()

	var identities []model.Identity
	err := st.StreamIdentities(context.Background(), tables.Identities, 0, func(identity model.Identity) error {
		identities = append(identities, identity)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamIdentities: %v", err)
	}
	return identities
}
