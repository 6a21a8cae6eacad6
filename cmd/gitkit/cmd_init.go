package main

import (
	"fmt"

	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd(g *globalOptions) *cobra.Command {
	var bare bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.repoPath
			if len(args) == 1 {
				path = args[0]
			}
			r, err := repo.Init(path, bare)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty repository in %s\n", r.GitDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&bare, "bare", false, "create a bare repository")
	return cmd
}
