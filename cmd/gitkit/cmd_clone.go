package main

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitkit/pkg/remote"
	"github.com/spf13/cobra"
)

func newCloneCmd(g *globalOptions) *cobra.Command {
	var bare bool
	var remoteName string

	cmd := &cobra.Command{
		Use:   "clone <url> [directory]",
		Short: "Clone a repository over the dumb HTTP protocol",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			} else {
				dest = defaultCloneDir(url, bare)
			}
			if strings.TrimSpace(dest) == "" {
				return fmt.Errorf("destination directory is required")
			}
			absDest, err := filepath.Abs(dest)
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}

			transport, err := remote.NewHTTPTransport(url, remote.HTTPOptions{
				Timeout:   g.cfg.HTTP.Timeout,
				UserAgent: g.cfg.HTTP.UserAgent,
				Token:     g.cfg.HTTP.Token,
			})
			if err != nil {
				return err
			}
			retrying := &remote.RetryTransport{Next: transport, MaxAttempts: g.cfg.HTTP.Retries}

			res, err := remote.Clone(cmd.Context(), retrying, absDest, remote.CloneOptions{
				Bare:       bare,
				RemoteName: remoteName,
				Logger:     g.log.WithField("remote", transport.URL()),
			})
			if err != nil {
				return err
			}
			defer res.Repo.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cloned %s into %s (%d refs, %d files fetched)\n", transport.URL(), absDest, len(res.Refs), res.Fetched)
			for _, name := range res.Skipped {
				fmt.Fprintf(out, "warning: skipped %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&bare, "bare", false, "create a bare repository")
	cmd.Flags().StringVarP(&remoteName, "origin", "o", "origin", "name to assign to the cloned remote")
	return cmd
}

// defaultCloneDir derives "repo" from ".../repo.git" or ".../repo", keeping
// the .git suffix for bare clones.
func defaultCloneDir(url string, bare bool) string {
	base := path.Base(strings.TrimRight(url, "/"))
	if base == "." || base == "/" || strings.Contains(base, ":") {
		return ""
	}
	name := strings.TrimSuffix(base, ".git")
	if bare {
		return name + ".git"
	}
	return name
}
