package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lsm/internal/server"
	"lsm/internal/store"
)

func newRoutesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the admin panel route table in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				srv, err := server.New(cfg, st, nil)
				if err != nil {
					return err
				}
				rt := srv.App().Router()
				routes := rt.Routes()
				rows := make([][]string, 0, len(routes))
				for i, r := range routes {
					rows = append(rows, []string{
						fmt.Sprint(i + 1),
						strings.Join(r.Methods, ","),
						rt.BasePath() + r.Pattern,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out,
					[]string{"#", "Methods", "Pattern"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}
