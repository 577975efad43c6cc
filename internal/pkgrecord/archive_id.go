package pkgrecord

import (
	"fmt"
	"strings"
)

// ArchiveIdentifier is the (name, version, build) triple parsed out of a
// package archive filename, plus which archive format it names.
type ArchiveIdentifier struct {
	Name    string
	Version string
	Build   string
	Ext     string // "tar.bz2" or "conda"
}

// ParseArchiveIdentifier parses "<name>-<version>-<build>.(tar.bz2|conda)"
// by right-splitting on '-' at most twice (spec §3: ArchiveIdentifier).
func ParseArchiveIdentifier(filename string) (ArchiveIdentifier, error) {
	var ext string
	base := filename
	switch {
	case strings.HasSuffix(filename, ".tar.bz2"):
		ext = "tar.bz2"
		base = strings.TrimSuffix(filename, ".tar.bz2")
	case strings.HasSuffix(filename, ".conda"):
		ext = "conda"
		base = strings.TrimSuffix(filename, ".conda")
	default:
		return ArchiveIdentifier{}, fmt.Errorf("unrecognized archive extension: %q", filename)
	}

	// Right-split on '-' at most twice: build, then version, then name
	// (name itself may contain '-').
	i2 := strings.LastIndexByte(base, '-')
	if i2 < 0 {
		return ArchiveIdentifier{}, fmt.Errorf("missing build component in %q", filename)
	}
	build := base[i2+1:]
	rest := base[:i2]

	i1 := strings.LastIndexByte(rest, '-')
	if i1 < 0 {
		return ArchiveIdentifier{}, fmt.Errorf("missing version component in %q", filename)
	}
	version := rest[i1+1:]
	name := rest[:i1]

	if name == "" || version == "" || build == "" {
		return ArchiveIdentifier{}, fmt.Errorf("empty name/version/build component in %q", filename)
	}

	return ArchiveIdentifier{Name: name, Version: version, Build: build, Ext: ext}, nil
}

// ToFileName round-trips an ArchiveIdentifier back to its filename.
func (a ArchiveIdentifier) ToFileName() string {
	return a.Name + "-" + a.Version + "-" + a.Build + "." + a.Ext
}
