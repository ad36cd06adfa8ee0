package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/cmingest/internal/core"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the registered input formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tEXTENSION\tDESCRIPTION")
			for _, def := range core.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Info.Key, def.Info.Extension, def.Info.Label)
			}
			return tw.Flush()
		},
	}
}
