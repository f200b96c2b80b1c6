package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRetireCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retire <entity> <business-key>",
		Short: "Soft-delete a dimension row and drop its search document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			r, err := svc.Retire(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !r.Found {
				fmt.Fprintf(out, "%s %q: no active row\n", r.Entity, args[1])
				return nil
			}
			fmt.Fprintf(out, "%s %q retired (id %d)\n", r.Entity, r.Key, r.ID)
			if !r.Unindexed {
				fmt.Fprintln(out, "warning: search document was not removed; run reindex once search is reachable")
			}
			return nil
		},
	}
}
