package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [entity...]",
		Short: "Replay active warehouse rows into the search collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.Reindex(cmd.Context(), args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range res.Outcomes {
				fmt.Fprintln(out, o.String())
			}
			fmt.Fprintf(out, "processed %d rows: %d indexed, %d invalid, %d failed\n",
				res.Processed, res.Indexed, res.Invalid, res.Failed)
			return nil
		},
	}
}
