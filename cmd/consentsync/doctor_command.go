package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"consentsync/internal/preflight"
	"consentsync/internal/store"
)

type checkView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, database, and schema readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			var db preflight.Database
			st, openErr := store.Open(runCtx, cfg)
			if openErr == nil {
				defer st.Close()
				db = st
			}
			results := preflight.RunAll(runCtx, cfg, db, openErr)

			if ctx.jsonOutput() {
				views := make([]checkView, 0, len(results))
				for _, r := range results {
					views = append(views, checkView(r))
				}
				if err := writeJSON(cmd, views); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := isTerminal(out)
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}

			if preflight.Failed(results) {
				return fmt.Errorf("doctor: one or more checks failed")
			}
			return nil
		},
	}
}
