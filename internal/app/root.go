package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/config"
)

var (
	configPath string
	dbPath     string
	catalogDir string
	verbose    bool

	// RootCmd is the root command for stackup
	RootCmd = &cobra.Command{
		Use:   "stackup",
		Short: "Install self-hosted applications and their dependencies",
		Long: `stackup installs self-hosted applications from a catalog of install
scripts. Each unit declares the units it requires and the units it can
optionally add. Missing dependencies are installed first, each one
confirmed before the next starts.

Quick Start:
  1. stackup init
  2. stackup plan n8n
  3. stackup install n8n

Features:
  • Dependency-driven installs with per-step confirmation
  • Probes that detect what is already on the host
  • Generated credentials shared between install scripts
  • Health checks, backups and an install history

Examples:
  # Show the catalog
  stackup list

  # Preview an install without running anything
  stackup install n8n --dry-run

  # Install non-interactively, adding optional units
  stackup install n8n --yes --with-optional

  # Check what is running
  stackup health`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "stackup: dependency-driven installer for self-hosted applications")
			fmt.Fprintln(out)
			if _, err := os.Stat(configFilePath()); os.IsNotExist(err) {
				fmt.Fprintln(out, "Run 'stackup init' to get started.")
			} else {
				fmt.Fprintln(out, "Tip: Run 'stackup list' to see the catalog.")
				fmt.Fprintln(out, "     Run 'stackup status' to see what is installed.")
			}
			fmt.Fprintln(out, "Run 'stackup --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.stackup/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.stackup/stackup.db)")
	RootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", "", "catalog directory (default: catalog_dir from config)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write debug records to the log")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// configFilePath returns the --config value or the default location.
func configFilePath() string {
	if configPath != "" {
		return configPath
	}
	dir, err := config.Dir()
	if err != nil {
		return config.FileName
	}
	return dir + string(os.PathSeparator) + config.FileName
}
