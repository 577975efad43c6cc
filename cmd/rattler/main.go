package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nebari-dev/rattler-go/internal/config"
	"github.com/nebari-dev/rattler-go/internal/logger"
)

// Version is set via ldflags at build time.
var Version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rattler",
	Short: "rattler-go - Conda-compatible package resolution and installation",
	Long: `rattler-go resolves and installs Conda packages from channel repodata.

Examples:
  # Solve an environment without installing it
  rattler solve -c conda-forge python=3.11 numpy

  # Install a solved environment into a prefix
  rattler install -c conda-forge --prefix ./envs/myenv python=3.11 numpy

  # Inspect or reclaim package cache disk usage
  rattler cache info
  rattler cache prune --max-age 720h`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		logger.Init(cfg.Log.Format, cfg.Log.Level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
