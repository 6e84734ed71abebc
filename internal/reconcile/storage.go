package reconcile

import (
	"context"

	"consentsync/internal/model"
	"consentsync/internal/schema"
	"consentsync/internal/store"
)

// Storage is the read and transaction surface the engine needs.
type Storage interface {
	StreamEmailSubscriptions(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.EmailSubscription) error) error
	StreamPhoneSubscriptions(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.PhoneSubscription) error) error
	StreamCustomers(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.CustomerRecord) error) error
	StreamIdentities(ctx context.Context, table schema.Handle, chunkSize int, fn func(model.Identity) error) error
	Transact(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface available inside a transaction.
type Tx interface {
	InsertIdentities(ctx context.Context, table schema.Handle, identities []model.Identity) ([]model.Identity, error)
	InsertIdentity(ctx context.Context, table schema.Handle, identity model.Identity) (model.Identity, error)
	UpdateConsent(ctx context.Context, table schema.Handle, updates []store.ConsentUpdate) (int64, error)
	Savepoint(ctx context.Context, fn func(Tx) error) error
}

// FromStore adapts a store.Store to Storage.
func FromStore(st *store.Store) Storage {
	return storeAdapter{Store: st}
}

type storeAdapter struct {
	*store.Store
}

func (a storeAdapter) Transact(ctx context.Context, fn func(Tx) error) error {
	return a.Store.InTx(ctx, func(tx *store.Tx) error {
		return fn(txAdapter{Tx: tx})
	})
}

type txAdapter struct {
	*store.Tx
}

func (t txAdapter) Savepoint(ctx context.Context, fn func(Tx) error) error {
	return t.Tx.Savepoint(ctx, func(inner *store.Tx) error {
		return fn(txAdapter{Tx: inner})
	})
}
