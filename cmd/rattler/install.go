package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebari-dev/rattler-go/internal/installer"
	"github.com/nebari-dev/rattler-go/internal/pkgcache"
	"github.com/nebari-dev/rattler-go/internal/reporter"
	"github.com/nebari-dev/rattler-go/internal/solver"
	"github.com/nebari-dev/rattler-go/internal/transaction"
)

var (
	installChannels []string
	installPrefix   string
)

var installCmd = &cobra.Command{
	Use:   "install [specs...]",
	Short: "Solve and install a set of package specs into a prefix",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if installPrefix == "" {
			return fmt.Errorf("--prefix is required")
		}

		channels := installChannels
		if len(channels) == 0 {
			channels = cfg.Channels.Default
		}

		records, err := fetchCandidates(cmd.Context(), channels, args)
		if err != nil {
			return err
		}

		in := solver.Input{
			RootSpecs:       args,
			Available:       solver.StaticAvailable(records),
			ChannelPriority: cfg.ChannelPriority(),
			Strategy:        cfg.Strategy(),
			Timeout:         cfg.SolveTimeout(),
			VirtualPackages: cfg.VirtualPackages,
		}
		solved, conflict, err := solver.Solve(cmd.Context(), in)
		if err != nil {
			return err
		}
		if conflict != nil {
			fmt.Println(conflict.Tree())
			return fmt.Errorf("could not solve environment")
		}

		installed, err := installer.ListPrefixRecords(installPrefix)
		if err != nil {
			return err
		}
		tx := transaction.Diff(installed, solved, transaction.Options{})
		if len(tx.Operations) == 0 {
			fmt.Println("environment already satisfies the requested specs")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "transaction %s: %d operations\n", tx.ID, len(tx.Operations))

		cache, err := pkgcache.Open(cfg.Cache.PackagesDir)
		if err != nil {
			return err
		}
		defer cache.Close()

		rep := reporter.NewTerminal(cmd.OutOrStdout(), -1)
		driver := installer.NewDriver(cache, installer.HTTPFetcher(nil), installer.Options{
			Prefix:       installPrefix,
			Concurrency:  cfg.Cache.InstallerJobs,
			SitePackages: installPrefix + "/lib/python3.11/site-packages",
			BinDir:       installPrefix + "/bin",
			Reporter:     rep,
			ProgressLinked: func(name string) {
				fmt.Fprintf(cmd.OutOrStdout(), "\nlinked %s\n", name)
			},
		})

		if err := driver.Run(cmd.Context(), tx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\ndone")
		return nil
	},
}

func init() {
	installCmd.Flags().StringSliceVarP(&installChannels, "channel", "c", nil, "channel to solve against (repeatable)")
	installCmd.Flags().StringVar(&installPrefix, "prefix", "", "target environment directory")
}
