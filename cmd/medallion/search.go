package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/search"
)

func newSearchCmd(a *app) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search every collection, or one with --entity",
		Long: "Search every collection, or one with --entity. With --entity, tokens of the\n" +
			"form field:value on facet fields filter, for example: search --entity asset status_name:Active db",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			text := strings.Join(args, " ")
			var hits []search.Hit
			if entity == "" {
				hits, err = svc.Global(cmd.Context(), text)
			} else {
				hits, err = svc.Search(cmd.Context(), entity, text)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%-18s %-8s %s\n", h.Entity, h.ID, label(h))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "restrict to one entity collection")
	return cmd
}

// label renders the business key of a hit, or its id when the entity is
// unknown.
func label(h search.Hit) string {
	spec, ok := catalog.Lookup(h.Entity)
	if !ok {
		return h.ID
	}
	return fmt.Sprint(h.Document[spec.BusinessKey])
}
