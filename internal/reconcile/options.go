package reconcile

import (
	"time"

	"consentsync/internal/config"
	"consentsync/internal/store"
)

// DefaultBatchSize is the identity flush size used when none is configured.
const DefaultBatchSize = 1000

// Options tunes a reconciliation run.
type Options struct {
	// BatchSize is the number of identity candidates buffered per flush.
	BatchSize int
	// ChunkSize is the number of rows read per storage round trip.
	ChunkSize int
	// DryRun evaluates every rule and writes reports but skips storage writes.
	DryRun bool
	// Now stamps created identities. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the reconcile section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize: cfg.Reconcile.BatchSize,
		ChunkSize: cfg.Reconcile.ChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = store.DefaultChunkSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
