package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/repodata"
	"github.com/nebari-dev/rattler-go/internal/solver"
)

var solveChannels []string

var solveCmd = &cobra.Command{
	Use:   "solve [specs...]",
	Short: "Resolve a set of package specs against channel repodata",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channels := solveChannels
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

		for _, r := range solved {
			fmt.Printf("%-30s %s (%s)\n", r.Name, r.Version, r.Build)
		}
		return nil
	},
}

func init() {
	solveCmd.Flags().StringSliceVarP(&solveChannels, "channel", "c", nil, "channel to solve against (repeatable)")
}

// fetchCandidates queries every configured channel's repodata for the
// given specs (recursively pulling in transitive dependency names) and
// returns them indexed by package name for the solver.
func fetchCandidates(ctx context.Context, channelNames, specs []string) (map[string][]pkgrecord.RepoDataRecord, error) {
	router := repodata.NewRouter(cfg.MirrorMap())
	gw := repodata.NewGateway(router, cfg.Cache.RepodataDir)
	gw.UseCacheOnly = cfg.Network.UseCacheOnly

	if cfg.Cache.SharedDSN != "" {
		store, err := repodata.OpenPostgresStore(cfg.Cache.SharedDSN)
		if err != nil {
			return nil, fmt.Errorf("opening shared repodata cache: %w", err)
		}
		gw.SharedStore = store
	}

	channels := make([]repodata.Channel, 0, len(channelNames))
	for _, name := range channelNames {
		channels = append(channels, repodata.Channel{
			Name:      name,
			BaseURL:   "https://conda.anaconda.org/" + name,
			Layout:    repodata.LayoutMonolithic,
			Platforms: []string{currentSubdir(), "noarch"},
		})
	}

	q := repodata.Query{
		Channels:  channels,
		Platforms: []string{currentSubdir(), "noarch"},
		Specs:     specs,
		Recursive: true,
	}

	results, err := gw.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]pkgrecord.RepoDataRecord)
	for _, rd := range results {
		for _, r := range rd.Records {
			byName[r.Name] = append(byName[r.Name], r)
		}
	}
	return byName, nil
}
