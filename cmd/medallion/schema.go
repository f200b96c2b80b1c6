package main

import (
	"github.com/spf13/cobra"
)

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the entity catalog and collection schemas as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			return svc.ExportSchema(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
