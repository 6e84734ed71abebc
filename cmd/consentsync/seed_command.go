package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"consentsync/internal/config"
	"consentsync/internal/seed"
	"consentsync/internal/store"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dir>",
		Short: "Load fixture CSV exports into the entity tables",
		Long: fmt.Sprintf("Upsert rows by id from %s, %s, %s and %s in <dir>.",
			seed.ClientsFile, seed.SubscribersFile, seed.SubscriberSMSFile, seed.UsersFile),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()
			err = ctx.withStore(runCtx, func(cfg *config.Config, st *store.Store) error {
				tables, err := resolveTables(runCtx, cfg, st)
				if err != nil {
					return err
				}
				var results []seed.FileResult
				err = withRunLock(cfg, logger, func() error {
					results, err = seed.NewLoader(st, tables, logger).Load(runCtx, args[0])
					return err
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, results)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.File, r.Entity, strconv.Itoa(r.Rows)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"File", "Entity", "Rows"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
			if err != nil {
				logRunFailure(logger, "seed failed", err)
			}
			return err
		},
	}
}
