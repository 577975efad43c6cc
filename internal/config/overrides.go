package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

// OverrideFile is the narrower, hand-edited settings surface for
// per-channel mirror rewrites and virtual-package version overrides.
// It is kept separate from the viper-driven Config so editing it
// cannot be silently overridden by a RATTLER_ env var the way the
// main config can.
type OverrideFile struct {
	MirrorMap       map[string]string        `yaml:"mirror_map"`
	VirtualPackages []VirtualPackageOverride `yaml:"virtual_packages"`
}

// VirtualPackageOverride pins one virtual package's advertised
// version/build, letting an operator make an environment believe it
// has, for example, a newer __glibc than actually installed.
type VirtualPackageOverride struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Build   string `yaml:"build"`
}

// LoadOverrideFile reads path as YAML. A missing file returns a zero
// OverrideFile, not an error: the override surface is optional.
func LoadOverrideFile(path string) (OverrideFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return OverrideFile{}, nil
		}
		return OverrideFile{}, err
	}
	var out OverrideFile
	if err := yaml.Unmarshal(data, &out); err != nil {
		return OverrideFile{}, err
	}
	return out, nil
}

// VirtualPackageRecords converts the override entries into the
// PackageRecord shape solver.Input.VirtualPackages expects.
func (o OverrideFile) VirtualPackageRecords() []pkgrecord.PackageRecord {
	recs := make([]pkgrecord.PackageRecord, 0, len(o.VirtualPackages))
	for _, v := range o.VirtualPackages {
		recs = append(recs, pkgrecord.PackageRecord{Name: v.Name, Version: v.Version, Build: v.Build})
	}
	return recs
}

// LegacySettings mirrors the teacher's original ".raconda" TOML
// settings format (internal/store.TomlContentHash hashed this same
// file shape). Carried for one release so operators upgrading from
// that layout keep their cache path and channel list without manually
// transcribing them into the new YAML/viper config.
type LegacySettings struct {
	CacheDir string   `toml:"cache_dir"`
	Channels []string `toml:"channels"`
}

// LoadLegacySettings reads path as TOML. A missing file returns a nil
// LegacySettings, not an error.
func LoadLegacySettings(path string) (*LegacySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s LegacySettings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyLegacy folds non-empty legacy fields into c wherever the
// primary config left the corresponding field at its zero value, so
// an explicit rattler.yaml setting always wins over the legacy file.
func (c *Config) ApplyLegacy(s *LegacySettings) {
	if s == nil {
		return
	}
	if c.Cache.RepodataDir == "" && s.CacheDir != "" {
		c.Cache.RepodataDir = filepath.Join(s.CacheDir, "repodata")
	}
	if c.Cache.PackagesDir == "" && s.CacheDir != "" {
		c.Cache.PackagesDir = filepath.Join(s.CacheDir, "pkgs")
	}
	if len(c.Channels.Default) == 0 && len(s.Channels) > 0 {
		c.Channels.Default = s.Channels
	}
}
