package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nebari-dev/rattler-go/internal/pkgcache"
)

var pruneMaxAge time.Duration
var pruneMaxSizeMB int64

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reclaim package cache disk usage",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show package cache disk usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := pkgcache.Open(cfg.Cache.PackagesDir)
		if err != nil {
			return err
		}
		defer cache.Close()

		total, err := cache.TotalSize()
		if err != nil {
			return err
		}
		fmt.Printf("cache dir: %s\n", cfg.Cache.PackagesDir)
		fmt.Printf("total size: %.2f MB\n", float64(total)/(1024*1024))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict old or excess package cache entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := pkgcache.Open(cfg.Cache.PackagesDir)
		if err != nil {
			return err
		}
		defer cache.Close()

		maxAge := pruneMaxAge
		if maxAge == 0 {
			maxAge = time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour
		}
		maxBytes := pruneMaxSizeMB
		if maxBytes == 0 {
			maxBytes = cfg.Cache.MaxSizeMB * 1024 * 1024
		} else {
			maxBytes *= 1024 * 1024
		}

		result, err := cache.Prune(maxAge, maxBytes)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d entries, freed %.2f MB, %.2f MB remaining\n",
			len(result.RemovedKeys), float64(result.BytesFreed)/(1024*1024), float64(result.BytesRemaining)/(1024*1024))
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "evict entries older than this (default from config)")
	cachePruneCmd.Flags().Int64Var(&pruneMaxSizeMB, "max-size-mb", 0, "evict oldest entries until under this size (default from config)")
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}
