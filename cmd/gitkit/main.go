package main

import (
	"fmt"
	"os"

	"github.com/odvcencio/gitkit/pkg/repo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	repoPath   string
	configPath string
	logLevel   string

	cfg *cliConfig
	log *logrus.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:           "gitkit",
		Short:         "Read, clone and check out Git repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.repoPath, "repo", "C", ".", "path to the repository")
	flags.StringVar(&g.configPath, "config", "", "path to the config file (default $XDG_CONFIG_HOME/gitkit/config.toml)")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(g))
	root.AddCommand(newBranchCmd(g))
	root.AddCommand(newTagCmd(g))
	root.AddCommand(newLogCmd(g))
	root.AddCommand(newReflogCmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newLsTreeCmd(g))
	root.AddCommand(newCatFileCmd(g))
	root.AddCommand(newDiffCmd(g))
	root.AddCommand(newCloneCmd(g))
	root.AddCommand(newCheckoutCmd(g))
	root.AddCommand(newLsIndexCmd(g))
	root.AddCommand(newVerifyCmd(g))
	root.AddCommand(newGcCmd(g))
	return root
}

// setup loads configuration and builds the logger before a subcommand runs.
func (g *globalOptions) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.log = log
	return nil
}

// openRepo opens the repository selected by --repo. The caller closes it.
func (g *globalOptions) openRepo() (*repo.Repo, error) {
	return repo.Open(g.repoPath)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gitkit %s\n", version)
		},
	}
}
