package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckoutCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout <revision> [directory]",
		Short: "Write a commit's tree to a directory and rebuild the index",
		Long: "Write a commit's tree to a directory and rebuild the index. " +
			"Checking out into the repository's own working tree also removes files " +
			"that the previous index tracked and the new tree lacks. HEAD is not moved.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			dest := r.WorkDir
			if len(args) == 2 {
				dest = args[1]
			}
			if dest == "" {
				return fmt.Errorf("bare repository: a target directory is required")
			}

			id, err := r.ResolveRevision(args[0])
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", args[0], err)
			}
			commit, err := r.PeelToCommit(id)
			if err != nil {
				return err
			}
			idx, err := r.Checkout(commit, dest)
			if err != nil {
				return err
			}
			g.log.WithField("commit", commit.String()).Debug("checkout complete")
			fmt.Fprintf(cmd.OutOrStdout(), "checked out %s (%d files)\n", commit.String()[:8], len(idx.Entries))
			return nil
		},
	}
	return cmd
}
