package reconcile_test

import (
	"context"
	"testing"
	"time"

	"consentsync/internal/config"
	"consentsync/internal/logging"
	"consentsync/internal/model"
	"consentsync/internal/reconcile"
	"consentsync/internal/report"
	"consentsync/internal/schema"
	"consentsync/internal/store"
	"consentsync/internal/testsupport"
)

type env struct {
	cfg    *config.Config
	st     *store.Store
	tables schema.Tables
	sink   *report.Sink
}

func newEnv(t *testing.T, fx testsupport.Fixture, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	tables := testsupport.MustResolveTables(t, st, "")
	testsupport.MustSeed(t, st, tables, fx)
	return &env{cfg: cfg, st: st, tables: tables, sink: report.NewSink(cfg.Paths.ReportDir)}
}

func (e *env) options() reconcile.Options {
	opts := reconcile.OptionsFromConfig(e.cfg)
	opts.Now = func() time.Time { return testsupport.At(1000) }
	return opts
}

func (e *env) build(t *testing.T, mutate ...func(*reconcile.Options)) reconcile.BuildResult {
	t.Helper()
	return e.buildWith(t, reconcile.FromStore(e.st), mutate...)
}

func (e *env) buildWith(t *testing.T, storage reconcile.Storage, mutate ...func(*reconcile.Options)) reconcile.BuildResult {
	t.Helper()
	opts := e.options()
	for _, fn := range mutate {
		fn(&opts)
	}
	builder := reconcile.NewBuilder(storage, e.tables, e.sink, opts, logging.NewNop())
	result, err := builder.Run(context.Background())
	if err != nil {
		t.Fatalf("Builder.Run: %v", err)
	}
	return result
}

func (e *env) backfill(t *testing.T, mutate ...func(*reconcile.Options)) reconcile.BackfillStats {
	t.Helper()
	opts := e.options()
	for _, fn := range mutate {
		fn(&opts)
	}
	stats, err := reconcile.NewBackfill(reconcile.FromStore(e.st), e.tables, opts, logging.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Backfill.Run: %v", err)
	}
	return stats
}

func (e *env) identities(t *testing.T) []model.Identity {
	t.Helper()
	return testsupport.MustIdentities(t, e.st, e.tables)
}

// reportRows returns the data rows of a sink, header excluded.
func (e *env) reportRows(t *testing.T, name string) [][]string {
	t.Helper()
	records := testsupport.ReadCSV(t, e.sink.Path(name))
	if len(records) == 0 {
		t.Fatalf("report %s has no header", name)
	}
	return records[1:]
}

func dryRun(o *reconcile.Options) { o.DryRun = true }

func findByEmail(identities []model.Identity, email string) (model.Identity, bool) {
	for _, identity := range identities {
		if identity.Email == email {
			return identity, true
		}
	}
	return model.Identity{}, false
}

func findByPhone(identities []model.Identity, phone string) (model.Identity, bool) {
	for _, identity := range identities {
		if identity.Phone == phone {
			return identity, true
		}
	}
	return model.Identity{}, false
}

func assertNoDuplicateClaims(t *testing.T, identities []model.Identity) {
	t.Helper()
	emails := map[string]int64{}
	phones := map[string]int64{}
	for _, identity := range identities {
		if identity.Email != "" {
			if other, ok := emails[identity.Email]; ok {
				t.Fatalf("email %s claimed by identities %d and %d", identity.Email, other, identity.ID)
			}
			emails[identity.Email] = identity.ID
		}
		if identity.Phone != "" {
			if other, ok := phones[identity.Phone]; ok {
				t.Fatalf("phone %s claimed by identities %d and %d", identity.Phone, other, identity.ID)
			}
			phones[identity.Phone] = identity.ID
		}
	}
}
