// Package cli wires the aptrepo subcommands to a deb.Repository. It is a
// thin dispatcher: every subcommand only parses flags, loads config and
// calls into package deb.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/archflux/aptrepo/deb"
)

var (
	repoRoot string
	cfgFile  string
	verbose  bool
	config   *deb.Config
	logger   = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "aptrepo",
	Short: "Manage a local APT repository",
	Long: `aptrepo builds and maintains a Debian/Ubuntu-style APT repository
tree: a dists/<suite>/<component>/ hierarchy of Packages, Sources and
Release files, with staged .deb and .dsc files living directly under
their binary-<arch>/<section>/ or source/<section>/ directories.`,
	Version:           "0.1.0",
	PersistentPreRunE: loadConfigForCommand,
}

// Execute runs the aptrepo command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoRoot, "root", ".", "repository root directory")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML repository config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(signCmd)
}

func loadConfigForCommand(cmd *cobra.Command, args []string) error {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfgFile == "" {
		config = deb.DefaultConfig()
		return nil
	}
	cfg, err := deb.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	config = cfg
	return nil
}

func newRepository() *deb.Repository {
	repo := deb.NewRepository(repoRoot, config)
	repo.Log = logger
	return repo
}
