package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/spf13/cobra"
)

func newLsIndexCmd(g *globalOptions) *cobra.Command {
	var stat bool

	cmd := &cobra.Command{
		Use:   "ls-index [index-file]",
		Short: "List the entries of an index file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var idx *repo.Index
			if len(args) == 1 {
				var err error
				idx, err = repo.ReadIndexFile(args[0])
				if err != nil {
					return err
				}
			} else {
				r, err := g.openRepo()
				if err != nil {
					return err
				}
				defer r.Close()
				idx, err = r.ReadIndex()
				if err != nil {
					return fmt.Errorf("read %s: %w", filepath.Join(r.GitDir, "index"), err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version %d, %d entries\n", idx.Version, len(idx.Entries))
			if stat {
				table := newTable(out, "Mode", "Object", "Size", "MTime", "Path")
				for _, e := range idx.Entries {
					table.Append([]string{
						formatMode(e.Mode),
						e.ID.String(),
						strconv.FormatUint(uint64(e.Size), 10),
						fmt.Sprintf("%d.%09d", e.MTime, e.MTimeNsec),
						e.Path,
					})
				}
				table.Render()
				return nil
			}
			table := newTable(out, "Mode", "Object", "Path")
			for _, e := range idx.Entries {
				table.Append([]string{formatMode(e.Mode), e.ID.String(), e.Path})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&stat, "stat", "s", false, "include size and modification time")
	return cmd
}
