package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"consentsync/internal/config"
	"consentsync/internal/logging"
	"consentsync/internal/reconcile"
	"consentsync/internal/report"
	"consentsync/internal/store"
)

type passView struct {
	Pass       string  `json:"pass"`
	Seen       int     `json:"seen"`
	Created    int     `json:"created"`
	Skipped    int     `json:"skipped"`
	Conflicts  int     `json:"conflicts"`
	NonUnique  int     `json:"non_unique"`
	Dropped    int     `json:"dropped"`
	DurationMS float64 `json:"duration_ms"`
}

type backfillView struct {
	Identities int     `json:"identities"`
	Updates    int     `json:"updates"`
	Merged     int     `json:"merged"`
	Applied    int64   `json:"applied"`
	DurationMS float64 `json:"duration_ms"`
}

type runView struct {
	RunID    string         `json:"run_id"`
	DryRun   bool           `json:"dry_run"`
	Passes   []passView     `json:"passes,omitempty"`
	Backfill *backfillView  `json:"backfill,omitempty"`
	Reports  map[string]int `json:"reports,omitempty"`
}

func newBuildIdentitiesCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "build-identities",
		Short: "Create user identities from subscribers and SMS subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runReconcile(cmd, dryRun, true, false)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate and report without creating identities")
	return cmd
}

func newBackfillConsentCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "backfill-consent",
		Short: "Carry newer subscription consent onto existing identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runReconcile(cmd, dryRun, false, true)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report planned consent updates without applying them")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build identities, then backfill consent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runReconcile(cmd, dryRun, true, true)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate both stages without writing to the database")
	return cmd
}

func (c *commandContext) runReconcile(cmd *cobra.Command, dryRun, build, backfill bool) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	runCtx := cmd.Context()

	err = c.withStore(runCtx, func(cfg *config.Config, st *store.Store) error {
		tables, err := resolveTables(runCtx, cfg, st)
		if err != nil {
			return err
		}

		view := runView{RunID: c.runID, DryRun: dryRun}
		sink := report.NewSink(cfg.Paths.ReportDir)
		opts := reconcile.OptionsFromConfig(cfg)
		opts.DryRun = dryRun
		storage := reconcile.FromStore(st)

		err = withRunLock(cfg, logger, func() error {
			logger.Info("reconciliation started",
				logging.String("driver", st.Driver()),
				logging.String("identities_table", tables.Identities.Table),
				logging.Bool("dry_run", dryRun),
			)
			if build {
				result, err := reconcile.NewBuilder(storage, tables, sink, opts, logger).Run(runCtx)
				view.Passes = append(view.Passes, newPassView(result.EmailFirst), newPassView(result.PhoneFirst))
				if err != nil {
					return fmt.Errorf("build identities: %w", err)
				}
				view.Reports = sink.Counts()
			}
			if backfill {
				stats, err := reconcile.NewBackfill(storage, tables, opts, logger).Run(runCtx)
				if err != nil {
					return fmt.Errorf("backfill consent: %w", err)
				}
				view.Backfill = &backfillView{
					Identities: stats.Identities,
					Updates:    stats.Updates,
					Merged:     stats.Merged,
					Applied:    stats.Applied,
					DurationMS: float64(stats.Duration.Microseconds()) / 1000,
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return c.printRun(cmd, logger, cfg, view)
	})
	if err != nil {
		logRunFailure(logger, "reconciliation failed", err)
	}
	return err
}

func newPassView(stats reconcile.PassStats) passView {
	return passView{
		Pass:       stats.Pass,
		Seen:       stats.Seen,
		Created:    stats.Created,
		Skipped:    stats.Skipped,
		Conflicts:  stats.Conflicts,
		NonUnique:  stats.NonUnique,
		Dropped:    stats.Dropped,
		DurationMS: float64(stats.Duration.Microseconds()) / 1000,
	}
}

func (c *commandContext) printRun(cmd *cobra.Command, logger *slog.Logger, cfg *config.Config, view runView) error {
	if c.jsonOutput() {
		return writeJSON(cmd, view)
	}
	out := cmd.OutOrStdout()
	if view.DryRun {
		fmt.Fprintln(out, "Dry run: no database changes were written")
	}
	if len(view.Passes) > 0 {
		rows := make([][]string, 0, len(view.Passes))
		for _, p := range view.Passes {
			rows = append(rows, []string{
				p.Pass,
				strconv.Itoa(p.Seen),
				strconv.Itoa(p.Created),
				strconv.Itoa(p.Skipped),
				strconv.Itoa(p.Conflicts),
				strconv.Itoa(p.NonUnique),
				strconv.Itoa(p.Dropped),
			})
		}
		fmt.Fprintln(out, renderTable(out,
			[]string{"Pass", "Seen", "Created", "Skipped", "Conflicts", "Non-unique", "Dropped"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		conflicts := view.Reports[report.SubscriberConflicts] + view.Reports[report.SubscriberSMSConflicts]
		if conflicts > 0 || view.Reports[report.NonUniqueClientPhones] > 0 {
			fmt.Fprintf(out, "Review rows appended under %s\n", cfg.Paths.ReportDir)
		}
	}
	if b := view.Backfill; b != nil {
		verb := "Updated"
		if view.DryRun {
			verb = "Would update"
		}
		fmt.Fprintf(out, "%s %d users (%d evaluated, %d by merge rule)\n", verb, b.Updates, b.Identities, b.Merged)
		if !view.DryRun && int64(b.Updates) != b.Applied {
			logging.WarnWithContext(logger, "applied consent updates differ from staged count", "backfill_mismatch",
				logging.Int("staged", b.Updates),
				logging.Int64("applied", b.Applied),
				logging.String(logging.FieldErrorHint, "identities may have been removed concurrently"),
			)
		}
	}
	return nil
}
