package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCmd(g *globalOptions) *cobra.Command {
	var deleteBranch string

	cmd := &cobra.Command{
		Use:   "branch [name [start-point]]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()

			if deleteBranch != "" {
				if err := r.DeleteBranch(deleteBranch); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted branch '%s'\n", deleteBranch)
				return nil
			}

			if len(args) > 0 {
				start := "HEAD"
				if len(args) == 2 {
					start = args[1]
				}
				id, err := r.ResolveRevision(start)
				if err != nil {
					return fmt.Errorf("cannot resolve %s: %w", start, err)
				}
				commit, err := r.PeelToCommit(id)
				if err != nil {
					return err
				}
				return r.CreateBranch(args[0], commit)
			}

			branches, err := r.Branches()
			if err != nil {
				return err
			}
			current, _ := r.CurrentBranch()
			for _, b := range branches {
				if b == current {
					fmt.Fprintf(out, "* %s\n", b)
				} else {
					fmt.Fprintf(out, "  %s\n", b)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")
	return cmd
}
