package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/spf13/cobra"
)

const dateLayout = "Mon Jan 2 15:04:05 2006 -0700"

func newLogCmd(g *globalOptions) *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [revision]",
		Short: "Show commit history along first parents",
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
			start, err := r.PeelToCommit(id)
			if err != nil {
				return err
			}

			entries, err := r.HistoryFrom(start, limit)
			if err != nil {
				return err
			}

			head, _ := r.ResolveRef("HEAD")
			branch, _ := r.CurrentBranch()

			out := cmd.OutOrStdout()
			for _, e := range entries {
				decoration := buildDecoration(e.ID, head, branch)
				if oneline {
					line := e.ID.String()[:8]
					if decoration != "" {
						line += " " + decoration
					}
					fmt.Fprintf(out, "%s %s\n", line, e.Commit.Summary())
					continue
				}
				if decoration != "" {
					fmt.Fprintf(out, "commit %s %s\n", e.ID, decoration)
				} else {
					fmt.Fprintf(out, "commit %s\n", e.ID)
				}
				writeCommitBody(out, e.Commit)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of commits to show (0 for all)")
	return cmd
}

// buildDecoration returns "(HEAD -> main)" or "(HEAD)" for the HEAD commit
// and "" for every other commit.
func buildDecoration(id, head object.ID, branch string) string {
	if id != head {
		return ""
	}
	if branch != "" {
		return "(HEAD -> " + branch + ")"
	}
	return "(HEAD)"
}

func writeCommitBody(out io.Writer, c *object.Commit) {
	if len(c.Parents) > 1 {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = p.String()[:8]
		}
		fmt.Fprintf(out, "Merge: %s\n", strings.Join(parents, " "))
	}
	fmt.Fprintf(out, "Author: %s\n", c.Author)
	fmt.Fprintf(out, "Date:   %s\n", c.Author.Time().Format(dateLayout))
	fmt.Fprintln(out)
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

func newReflogCmd(g *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show the update log of a ref",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			ref := "HEAD"
			if len(args) == 1 {
				ref = args[0]
			}
			entries, err := r.ReadReflog(ref, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range entries {
				fmt.Fprintf(out, "%s %s@{%d}: %s\n", e.New.String()[:8], ref, i, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries to show (0 for all)")
	return cmd
}

// changeLetter is the one-letter status used by show and diff --name-status.
func changeLetter(kind repo.ChangeKind) string {
	switch kind {
	case repo.ChangeAdded:
		return "A"
	case repo.ChangeDeleted:
		return "D"
	default:
		return "M"
	}
}
