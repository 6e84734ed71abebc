package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"consentsync/internal/config"
	"consentsync/internal/store"
)

type tableView struct {
	Entity    string `json:"entity"`
	Namespace string `json:"namespace"`
	Table     string `json:"table"`
	Rows      *int64 `json:"rows,omitempty"`
}

type statusView struct {
	Driver        string      `json:"driver"`
	SchemaVersion string      `json:"schema_version"`
	Tables        []tableView `json:"tables"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show row counts for every resolved entity table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			return ctx.withStore(runCtx, func(cfg *config.Config, st *store.Store) error {
				tables, err := resolveTables(runCtx, cfg, st)
				if err != nil {
					return err
				}
				counts, err := st.Counts(runCtx, tables)
				if err != nil {
					return err
				}
				version, err := st.SchemaVersion(runCtx)
				if err != nil {
					return err
				}

				view := statusView{Driver: st.Driver(), SchemaVersion: version}
				for _, c := range counts {
					rows := c.Rows
					view.Tables = append(view.Tables, tableView{
						Entity:    c.Handle.Logical,
						Namespace: c.Handle.Namespace,
						Table:     c.Handle.Table,
						Rows:      &rows,
					})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Driver: %s (schema %s)\n", view.Driver, view.SchemaVersion)
				rows := make([][]string, 0, len(view.Tables))
				for _, t := range view.Tables {
					rows = append(rows, []string{t.Entity, t.Table, strconv.FormatInt(*t.Rows, 10)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Entity", "Table", "Rows"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newSchemaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show how logical entities resolve to tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			return ctx.withStore(runCtx, func(cfg *config.Config, st *store.Store) error {
				tables, err := resolveTables(runCtx, cfg, st)
				if err != nil {
					return err
				}
				views := make([]tableView, 0, 4)
				for _, h := range tables.All() {
					views = append(views, tableView{Entity: h.Logical, Namespace: h.Namespace, Table: h.Table})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if cfg.Schema.Namespace != "" {
					fmt.Fprintf(out, "Namespace override: %s\n", cfg.Schema.Namespace)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Entity, v.Namespace, v.Table})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Entity", "Namespace", "Table"}, rows, nil))
				return nil
			})
		},
	}
}
