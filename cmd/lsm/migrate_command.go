package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lsm/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				applied, err := st.AppliedMigrations(commandCtx(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if st.Dialect().Name() == "sqlite" {
					fmt.Fprintf(out, "Database: sqlite (%s)\n", st.Location())
				} else {
					fmt.Fprintf(out, "Database: %s\n", st.Dialect().Name())
				}
				if len(applied) == 0 {
					fmt.Fprintln(out, "No migrations applied")
					return nil
				}
				fmt.Fprintf(out, "Schema version: %s (%d migrations)\n", applied[len(applied)-1], len(applied))
				return nil
			})
		},
	}
}
