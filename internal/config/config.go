// Package config loads rattler-go's ambient settings: cache locations,
// network retry policy, solver defaults, and channel/mirror overrides.
//
// Grounded on the teacher's internal/config.Load (viper defaults +
// config file + environment overrides), adapted from the teacher's
// server/database/auth sections to this module's channel/cache/solver
// domain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/repodata"
	"github.com/nebari-dev/rattler-go/internal/solver"
)

// Config holds all process-wide configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Network  NetworkConfig  `mapstructure:"network"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Channels ChannelsConfig `mapstructure:"channels"`

	// VirtualPackages is populated from the YAML override file, not
	// viper/mapstructure; it has no "virtual_packages" config key.
	VirtualPackages []pkgrecord.PackageRecord `mapstructure:"-"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// CacheConfig controls where downloaded repodata and unpacked packages
// are stored, and how aggressively Prune reclaims space.
type CacheConfig struct {
	RepodataDir   string `mapstructure:"repodata_dir"`
	PackagesDir   string `mapstructure:"packages_dir"`
	MaxAgeDays    int    `mapstructure:"max_age_days"`
	MaxSizeMB     int64  `mapstructure:"max_size_mb"`
	InstallerJobs int64  `mapstructure:"installer_jobs"`

	// SharedDSN, when set, points at a postgres database backing a
	// repodata.PostgresStore shared across a fleet of gateway hosts.
	// Empty by default: the filesystem cache alone is fine for a
	// single-host deployment.
	SharedDSN string `mapstructure:"shared_dsn"`
}

// NetworkConfig holds retry settings, exposed as a repodata.RetryPolicy
// by Config.RetryPolicy, and a cache-only flag. The repodata gateway's
// fetches use repodata.DefaultRetryPolicy and do not read these values.
type NetworkConfig struct {
	MaxAttempts  int  `mapstructure:"max_attempts"`
	BaseDelayMS  int  `mapstructure:"base_delay_ms"`
	MaxDelayMS   int  `mapstructure:"max_delay_ms"`
	UseCacheOnly bool `mapstructure:"use_cache_only"`
}

// SolverConfig holds defaults the CLI and library callers can override
// per solve.
type SolverConfig struct {
	Strategy        string `mapstructure:"strategy"`         // "highest", "lowest", "lowest-direct"
	ChannelPriority string `mapstructure:"channel_priority"` // "strict" or "disabled"
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// ChannelsConfig names the default channels to query and any mirror
// rewrites applied before a request leaves the process.
type ChannelsConfig struct {
	Default   []string          `mapstructure:"default"`
	MirrorMap map[string]string `mapstructure:"mirror_map"`
}

// Load reads configuration from a config file, then environment
// variables (prefixed RATTLER_), over a set of sane defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")

	cacheRoot := defaultCacheRoot()
	v.SetDefault("cache.repodata_dir", filepath.Join(cacheRoot, "repodata"))
	v.SetDefault("cache.packages_dir", filepath.Join(cacheRoot, "pkgs"))
	v.SetDefault("cache.max_age_days", 30)
	v.SetDefault("cache.max_size_mb", int64(5*1024))
	v.SetDefault("cache.installer_jobs", 4)
	v.SetDefault("cache.shared_dsn", "")

	v.SetDefault("network.max_attempts", 5)
	v.SetDefault("network.base_delay_ms", 200)
	v.SetDefault("network.max_delay_ms", 10_000)
	v.SetDefault("network.use_cache_only", false)

	v.SetDefault("solver.strategy", "highest")
	v.SetDefault("solver.channel_priority", "strict")
	v.SetDefault("solver.timeout_seconds", 90)

	v.SetDefault("channels.default", []string{"conda-forge"})
	v.SetDefault("channels.mirror_map", map[string]string{})

	v.SetConfigName("rattler")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "rattler"))
	}
	v.AddConfigPath("/etc/rattler/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RATTLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if legacy, err := LoadLegacySettings(filepath.Join(cacheRoot, "..", ".raconda")); err == nil {
		cfg.ApplyLegacy(legacy)
	}

	if overrides, err := LoadOverrideFile(filepath.Join(cacheRoot, "overrides.yaml")); err == nil {
		if cfg.Channels.MirrorMap == nil {
			cfg.Channels.MirrorMap = overrides.MirrorMap
		} else {
			for k, v := range overrides.MirrorMap {
				cfg.Channels.MirrorMap[k] = v
			}
		}
		cfg.VirtualPackages = overrides.VirtualPackageRecords()
	}

	return &cfg, nil
}

func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "rattler-go")
	}
	return filepath.Join(os.TempDir(), "rattler-go-cache")
}

// RetryPolicy builds a repodata.RetryPolicy from the configured
// network settings.
func (c *Config) RetryPolicy() repodata.RetryPolicy {
	return repodata.RetryPolicy{
		MaxAttempts: c.Network.MaxAttempts,
		BaseDelay:   time.Duration(c.Network.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(c.Network.MaxDelayMS) * time.Millisecond,
	}
}

// MirrorMap builds a repodata.MirrorMap from the configured channel
// mirror overrides.
func (c *Config) MirrorMap() repodata.MirrorMap {
	return repodata.MirrorMap(c.Channels.MirrorMap)
}

// Strategy resolves the configured solver strategy name to its enum
// value, defaulting to Highest on an unrecognized string.
func (c *Config) Strategy() solver.Strategy {
	switch strings.ToLower(c.Solver.Strategy) {
	case "lowest", "lowest-version":
		return solver.LowestVersion
	case "lowest-direct", "lowest-version-direct":
		return solver.LowestVersionDirect
	default:
		return solver.Highest
	}
}

// ChannelPriority resolves the configured channel priority name.
func (c *Config) ChannelPriority() solver.ChannelPriority {
	if strings.ToLower(c.Solver.ChannelPriority) == "disabled" {
		return solver.ChannelPriorityDisabled
	}
	return solver.ChannelPriorityStrict
}

// SolveTimeout returns the configured solver timeout as a Duration.
func (c *Config) SolveTimeout() time.Duration {
	return time.Duration(c.Solver.TimeoutSeconds) * time.Second
}
