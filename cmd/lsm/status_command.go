package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lsm/internal/preflight"
	"lsm/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, database and admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c := commandCtx(cmd)

			var results []preflight.Result
			st, openErr := store.Open(cfg)
			if openErr != nil {
				results = preflight.RunAll(c, cfg, nil)
				results = append(results, preflight.Result{Name: "Database", Detail: openErr.Error()})
			} else {
				defer st.Close()
				results = preflight.RunAll(c, cfg, st)
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, checkLabel(r), r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config: %s\n", ctx.configSource())
			fmt.Fprint(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
			fmt.Fprintln(out)
			return preflight.Summarize(results)
		},
	}
}

func checkLabel(r preflight.Result) string {
	switch {
	case r.Passed:
		return "ok"
	case r.Advisory:
		return "warn"
	default:
		return "fail"
	}
}
