package reconcile

import (
	"context"
	"fmt"

	"consentsync/internal/model"
	"consentsync/internal/normalize"
	"consentsync/internal/schema"
)

// identityIndex is the email and phone lookup over known identities. Keys are
// normalized; the first identity seen for an email keeps it.
type identityIndex struct {
	byEmail map[string]model.Identity
	byPhone map[string][]model.Identity
	count   int
}

func newIdentityIndex() *identityIndex {
	return &identityIndex{
		byEmail: make(map[string]model.Identity),
		byPhone: make(map[string][]model.Identity),
	}
}

func (ix *identityIndex) add(identity model.Identity) {
	ix.count++
	if email := normalize.Email(identity.Email); email != "" {
		if _, ok := ix.byEmail[email]; !ok {
			ix.byEmail[email] = identity
		}
	}
	if phone := normalize.Phone(identity.Phone); phone != "" {
		ix.byPhone[phone] = append(ix.byPhone[phone], identity)
	}
}

func (ix *identityIndex) emailClaimed(email string) bool {
	_, ok := ix.byEmail[email]
	return email != "" && ok
}

func (ix *identityIndex) phoneClaimed(phone string) bool {
	return phone != "" && len(ix.byPhone[phone]) > 0
}

func (ix *identityIndex) size() int {
	return ix.count
}

func loadIdentityIndex(ctx context.Context, storage Storage, table schema.Handle, chunkSize int) (*identityIndex, error) {
	ix := newIdentityIndex()
	err := storage.StreamIdentities(ctx, table, chunkSize, func(identity model.Identity) error {
		ix.add(identity)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	return ix, nil
}

// customerIndex holds the customer lookups and the non-unique phone set.
type customerIndex struct {
	// byEmail keeps the highest id per email.
	byEmail map[string]model.CustomerRecord
	byPhone map[string][]model.CustomerRecord
	// nonUnique holds phones shared by two or more distinct customers.
	nonUnique map[string]struct{}
	total     int
}

func loadCustomerIndex(ctx context.Context, storage Storage, table schema.Handle, chunkSize int) (*customerIndex, error) {
	ix := &customerIndex{
		byEmail:   make(map[string]model.CustomerRecord),
		byPhone:   make(map[string][]model.CustomerRecord),
		nonUnique: make(map[string]struct{}),
	}
	err := storage.StreamCustomers(ctx, table, chunkSize, func(c model.CustomerRecord) error {
		ix.total++
		if email := normalize.Email(c.Email); email != "" {
			ix.byEmail[email] = c
		}
		if phone := normalize.Phone(c.Phone); phone != "" {
			ix.byPhone[phone] = append(ix.byPhone[phone], c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	for phone, list := range ix.byPhone {
		ids := make(map[int64]struct{}, len(list))
		for _, c := range list {
			ids[c.ID] = struct{}{}
		}
		if len(ids) >= 2 {
			ix.nonUnique[phone] = struct{}{}
		}
	}
	return ix, nil
}

func (ix *customerIndex) phoneIsNonUnique(phone string) bool {
	_, ok := ix.nonUnique[phone]
	return phone != "" && ok
}
