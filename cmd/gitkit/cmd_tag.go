package main

import (
	"fmt"
	"time"

	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/spf13/cobra"
)

func newTagCmd(g *globalOptions) *cobra.Command {
	var deleteTag string
	var message string
	var annotate bool
	var force bool

	cmd := &cobra.Command{
		Use:   "tag [name [target]]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()

			if deleteTag != "" {
				if err := r.DeleteTag(deleteTag); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted tag '%s'\n", deleteTag)
				return nil
			}

			if len(args) == 0 {
				tags, err := r.Tags()
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Fprintln(out, t)
				}
				return nil
			}

			target := "HEAD"
			if len(args) == 2 {
				target = args[1]
			}
			id, err := r.ResolveRevision(target)
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", target, err)
			}

			if !annotate && message == "" {
				return r.CreateTag(args[0], id, force)
			}
			if message == "" {
				return fmt.Errorf("annotated tag requires a message (-m)")
			}
			tagID, err := r.CreateAnnotatedTag(args[0], id, repo.CommitterIdentity(time.Now()), message, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created tag object %s\n", tagID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	cmd.Flags().BoolVarP(&annotate, "annotate", "a", false, "create an annotated tag object")
	cmd.Flags().StringVarP(&message, "message", "m", "", "tag message (implies --annotate)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	return cmd
}
