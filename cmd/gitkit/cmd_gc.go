package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGcCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Pack loose objects and refresh dumb-HTTP server info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			summary, err := r.GC()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.PackedObjects == 0 {
				fmt.Fprintln(out, "nothing to pack")
				return nil
			}
			fmt.Fprintf(
				out,
				"packed %d loose object(s) into %s (%s)\n",
				summary.PackedObjects,
				summary.PackFile,
				summary.IndexFile,
			)
			return nil
		},
	}
}
