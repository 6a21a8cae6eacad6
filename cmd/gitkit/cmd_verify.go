package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify object integrity and ref connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.Store.Verify()
			if err != nil {
				return err
			}
			missing, err := r.CheckConnectivity()
			if err != nil {
				return err
			}
			for _, id := range missing {
				g.log.WithField("id", id.String()).Error("missing object")
			}
			if len(missing) > 0 {
				return fmt.Errorf("verify: %d reachable object(s) missing", len(missing))
			}

			fmt.Fprintf(
				cmd.OutOrStdout(),
				"ok: verified %d loose object(s), %d pack file(s), %d packed object(s)\n",
				report.LooseObjects,
				report.PackFiles,
				report.PackObjects,
			)
			return nil
		},
	}
}
