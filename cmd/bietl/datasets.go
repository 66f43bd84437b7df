package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bietl/internal/catalog"
)

func datasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets a batch can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATASET\tSOURCE\tTABLE\tMODE\tKEY")
			for _, e := range catalog.All() {
				key := strings.Join(e.Table.PrimaryKey, ",")
				if key == "" {
					key = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Source, e.Table.Name, e.Table.Mode, key)
			}
			return w.Flush()
		},
	}
}
