package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/odvcencio/gitkit/pkg/object"
	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newLsTreeCmd(g *globalOptions) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls-tree <tree-ish>",
		Short: "List the entries of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			treeID, err := resolveTree(r, args[0])
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), "Mode", "Type", "Object", "Path")
			if recursive {
				files, err := r.FlattenTree(treeID)
				if err != nil {
					return err
				}
				for _, f := range files {
					table.Append([]string{formatMode(f.Mode), entryType(f.Mode), f.ID.String(), f.Path})
				}
			} else {
				entries, err := r.Tree(treeID)
				if err != nil {
					return err
				}
				for _, e := range entries {
					table.Append([]string{formatMode(e.Mode), entryType(e.Mode), e.ID.String(), e.Name})
				}
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list files of every subtree")
	return cmd
}

// resolveTree resolves rev and peels commits and tags down to a tree id.
func resolveTree(r *repo.Repo, rev string) (object.ID, error) {
	id, err := r.ResolveRevision(rev)
	if err != nil {
		return object.ZeroID, fmt.Errorf("cannot resolve %s: %w", rev, err)
	}
	objType, data, err := r.Store.Read(id)
	if err != nil {
		return object.ZeroID, err
	}
	if objType == object.TypeTree {
		return id, nil
	}
	if objType == object.TypeCommit {
		c, err := object.ParseCommit(data)
		if err != nil {
			return object.ZeroID, err
		}
		return c.Tree, nil
	}
	commitID, err := r.PeelToCommit(id)
	if err != nil {
		return object.ZeroID, fmt.Errorf("%s is not a tree-ish: %w", rev, err)
	}
	c, err := r.Commit(commitID)
	if err != nil {
		return object.ZeroID, err
	}
	return c.Tree, nil
}

func formatMode(mode uint32) string {
	return fmt.Sprintf("%06o", mode)
}

func entryType(mode uint32) string {
	switch mode {
	case object.ModeDir:
		return string(object.TypeTree)
	case object.ModeGitlink:
		return string(object.TypeCommit)
	default:
		return string(object.TypeBlob)
	}
}

// newTable returns a left-aligned, borderless table with the given headers.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func newCatFileCmd(g *globalOptions) *cobra.Command {
	var showType bool
	var showSize bool

	cmd := &cobra.Command{
		Use:   "cat-file <object>",
		Short: "Print the type, size or content of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			id, err := r.ResolveRevision(args[0])
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", args[0], err)
			}
			objType, data, err := r.Store.Read(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, strconv.Itoa(len(data)))
			case objType == object.TypeTree:
				entries, err := object.ParseTree(data)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s %s %s\t%s\n", formatMode(e.Mode), entryType(e.Mode), e.ID, e.Name)
				}
			default:
				_, err = out.Write(data)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the object size")
	return cmd
}
