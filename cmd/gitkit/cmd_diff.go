package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

func newDiffCmd(g *globalOptions) *cobra.Command {
	var patch bool

	cmd := &cobra.Command{
		Use:   "diff <old-tree-ish> [new-tree-ish]",
		Short: "Compare two trees",
		Long: "Compare two trees. With one argument the tree is compared against HEAD; " +
			"the special name 'empty' stands for the empty tree.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			newRev := "HEAD"
			if len(args) == 2 {
				newRev = args[1]
			}
			oldTree, err := diffSide(r, args[0])
			if err != nil {
				return err
			}
			newTree, err := diffSide(r, newRev)
			if err != nil {
				return err
			}

			changes, err := r.TreeDiff(newTree, oldTree)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range changes {
				if !patch {
					fmt.Fprintf(out, "%s\t%s\n", changeLetter(c.Kind), c.Path)
					continue
				}
				if err := writePatch(out, r, c); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&patch, "patch", "p", false, "print line diffs instead of a name list")
	return cmd
}

func diffSide(r *repo.Repo, rev string) (object.ID, error) {
	if rev == "empty" {
		return object.ZeroID, nil
	}
	return resolveTree(r, rev)
}

// writePatch prints one change as a line diff computed with diffmatchpatch.
func writePatch(out io.Writer, r *repo.Repo, c repo.Change) error {
	oldText, err := blobText(r, c.OldID, c.OldMode)
	if err != nil {
		return err
	}
	newText, err := blobText(r, c.NewID, c.NewMode)
	if err != nil {
		return err
	}

	oldName, newName := "a/"+c.Path, "b/"+c.Path
	switch c.Kind {
	case repo.ChangeAdded:
		oldName = "/dev/null"
	case repo.ChangeDeleted:
		newName = "/dev/null"
	}
	fmt.Fprintf(out, "diff a/%s b/%s\n", c.Path, c.Path)
	if c.OldMode != c.NewMode && c.Kind == repo.ChangeModified {
		fmt.Fprintf(out, "old mode %06o\nnew mode %06o\n", c.OldMode, c.NewMode)
	}
	if isBinary(oldText) || isBinary(newText) {
		fmt.Fprintf(out, "Binary files %s and %s differ\n", oldName, newName)
		return nil
	}
	fmt.Fprintf(out, "--- %s\n+++ %s\n", oldName, newName)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			fmt.Fprint(out, prefix+line)
			if !strings.HasSuffix(line, "\n") {
				fmt.Fprint(out, "\n\\ No newline at end of file\n")
			}
		}
	}
	return nil
}

// blobText returns the blob content, or "" for a missing side or a gitlink.
func blobText(r *repo.Repo, id object.ID, mode uint32) (string, error) {
	if id == object.ZeroID {
		return "", nil
	}
	if mode == object.ModeGitlink {
		return "Subproject commit " + id.String() + "\n", nil
	}
	data, err := r.File(id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isBinary(s string) bool {
	n := len(s)
	if n > 8000 {
		n = 8000
	}
	return strings.IndexByte(s[:n], 0) >= 0
}
