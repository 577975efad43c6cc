package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverrideFileMissingIsZeroValue(t *testing.T) {
	out, err := LoadOverrideFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOverrideFile: %v", err)
	}
	if out.MirrorMap != nil || out.VirtualPackages != nil {
		t.Errorf("expected zero value, got %+v", out)
	}
}

func TestLoadOverrideFileParsesMirrorAndVirtualPackages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	body := "mirror_map:\n  https://conda.anaconda.org/conda-forge: https://mirror.example/conda-forge\nvirtual_packages:\n  - name: __glibc\n    version: \"2.35\"\n    build: \"0\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := LoadOverrideFile(path)
	if err != nil {
		t.Fatalf("LoadOverrideFile: %v", err)
	}
	if out.MirrorMap["https://conda.anaconda.org/conda-forge"] != "https://mirror.example/conda-forge" {
		t.Errorf("MirrorMap = %v", out.MirrorMap)
	}
	recs := out.VirtualPackageRecords()
	if len(recs) != 1 || recs[0].Name != "__glibc" || recs[0].Version != "2.35" {
		t.Errorf("VirtualPackageRecords() = %+v", recs)
	}
}

func TestLoadLegacySettingsMissingIsNil(t *testing.T) {
	s, err := LoadLegacySettings(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil || s != nil {
		t.Fatalf("LoadLegacySettings = %+v, %v, want nil, nil", s, err)
	}
}

func TestApplyLegacyFillsOnlyEmptyFields(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyLegacy(&LegacySettings{CacheDir: "/opt/raconda", Channels: []string{"defaults"}})
	if cfg.Cache.RepodataDir != filepath.Join("/opt/raconda", "repodata") {
		t.Errorf("RepodataDir = %q", cfg.Cache.RepodataDir)
	}
	if len(cfg.Channels.Default) != 1 || cfg.Channels.Default[0] != "defaults" {
		t.Errorf("Channels.Default = %v", cfg.Channels.Default)
	}

	cfg2 := &Config{Channels: ChannelsConfig{Default: []string{"conda-forge"}}}
	cfg2.ApplyLegacy(&LegacySettings{Channels: []string{"defaults"}})
	if cfg2.Channels.Default[0] != "conda-forge" {
		t.Errorf("explicit config should win over legacy, got %v", cfg2.Channels.Default)
	}
}
