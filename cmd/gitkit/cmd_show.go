package main

import (
	"fmt"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/spf13/cobra"
)

func newShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [revision]",
		Short: "Show commit metadata and changed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			rev := "HEAD"
			if len(args) == 1 {
				rev = args[0]
			}
			id, err := r.ResolveRevision(rev)
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", rev, err)
			}

			out := cmd.OutOrStdout()
			objType, data, err := r.Store.Read(id)
			if err != nil {
				return err
			}
			if objType == object.TypeTag {
				tag, err := object.ParseTag(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "tag %s\n", tag.Name)
				fmt.Fprintf(out, "Tagger: %s\n", tag.Tagger)
				fmt.Fprintf(out, "Date:   %s\n\n%s\n", tag.Tagger.Time().Format(dateLayout), tag.Message)
			}
			if objType == object.TypeBlob {
				_, err := out.Write(data)
				return err
			}
			if objType == object.TypeTree {
				entries, err := object.ParseTree(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "tree %s\n\n", id)
				for _, e := range entries {
					name := e.Name
					if e.IsDir && !e.IsGitlink() {
						name += "/"
					}
					fmt.Fprintln(out, name)
				}
				return nil
			}

			commitID, err := r.PeelToCommit(id)
			if err != nil {
				return err
			}
			commit, err := r.Commit(commitID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "commit %s\n", commitID)
			writeCommitBody(out, commit)

			base := object.ZeroID
			if len(commit.Parents) > 0 {
				parent, err := r.Commit(commit.Parents[0])
				if err != nil {
					return fmt.Errorf("show: read parent: %w", err)
				}
				base = parent.Tree
			}
			changes, err := r.TreeDiff(commit.Tree, base)
			if err != nil {
				return err
			}
			for _, c := range changes {
				fmt.Fprintf(out, "%s\t%s\n", changeLetter(c.Kind), c.Path)
			}
			return nil
		},
	}
}
