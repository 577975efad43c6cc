// Package pkgrecord defines the canonical package identity and metadata
// types (PackageRecord, RepoDataRecord, PrefixRecord) shared by the
// repodata gateway, solver, and installer, plus the dependency-ordering
// topological sort used to drive link order.
//
// Grounded on the teacher's internal/localindex.Entry (JSON-tagged value
// types persisted to disk, loaded with tolerant defaults) and
// internal/drift for the "identity + metadata read back from disk" shape.
package pkgrecord

// NoarchKind classifies a package's architecture independence.
type NoarchKind string

const (
	NoarchNone    NoarchKind = ""
	NoarchPython  NoarchKind = "python"
	NoarchGeneric NoarchKind = "generic"
)

// PackageRecord is the canonical metadata for one built package file,
// identified within a channel by (name, version, build, subdir).
type PackageRecord struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Build      string `json:"build"`
	BuildNumber int64  `json:"build_number"`
	Subdir     string `json:"subdir"`

	Depends    []string `json:"depends,omitempty"`
	Constrains []string `json:"constrains,omitempty"`

	Noarch        NoarchKind `json:"noarch,omitempty"`
	TrackFeatures []string   `json:"track_features,omitempty"`
	Features      string     `json:"features,omitempty"`

	Timestamp int64  `json:"timestamp,omitempty"`
	Size      int64  `json:"size,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	MD5       string `json:"md5,omitempty"`
	License   string `json:"license,omitempty"`
	Arch      string `json:"arch,omitempty"`
	Platform  string `json:"platform,omitempty"`

	PythonSitePackagesPath string   `json:"python_site_packages_path,omitempty"`
	Purls                  []string `json:"purls,omitempty"`
	RunExports             *RunExports `json:"run_exports,omitempty"`
}

// RunExports captures the weak/strong run-export constraints a package
// propagates to its dependents (conda's run_exports.json convention).
type RunExports struct {
	Weak       []string `json:"weak,omitempty"`
	Strong     []string `json:"strong,omitempty"`
	WeakConstrains []string `json:"weak_constrains,omitempty"`
	StrongConstrains []string `json:"strong_constrains,omitempty"`
	NoRunExports []string `json:"noarch,omitempty"`
}

// Key returns the (name, version, build) identity tuple as a single
// string, usable as a package-cache key or map key.
func (r PackageRecord) Key() string {
	return r.Name + "-" + r.Version + "-" + r.Build
}

// Filename returns the canonical archive filename for this record, given
// the package format extension ("tar.bz2" or "conda").
func (r PackageRecord) Filename(ext string) string {
	return r.Name + "-" + r.Version + "-" + r.Build + "." + ext
}

// RepoDataRecord is a PackageRecord enriched with the information a
// repodata fetch adds: where the file came from.
type RepoDataRecord struct {
	PackageRecord
	URL           string `json:"url"`
	FileName      string `json:"fn"`
	ChannelName   string `json:"channel"`
}

// PathType classifies one linked file's install strategy.
type PathType string

const (
	PathHardlink             PathType = "hardlink"
	PathSoftlink             PathType = "softlink"
	PathDirectory            PathType = "directory"
	PathPythonEntryPointExe  PathType = "python_entry_point_exe"
	PathPythonEntryPointUnix PathType = "python_entry_point_unix"
)

// FileMode classifies whether a linked file is rewritten as text or binary.
type FileMode string

const (
	FileModeText   FileMode = "text"
	FileModeBinary FileMode = "binary"
)

// PathEntry is one file in a package's info/paths.json manifest.
type PathEntry struct {
	RelativePath     string   `json:"_path"`
	PathType         PathType `json:"path_type"`
	PrefixPlaceholder string  `json:"prefix_placeholder,omitempty"`
	FileMode         FileMode `json:"file_mode,omitempty"`
	SHA256           string   `json:"sha256,omitempty"`
	Size             int64    `json:"size_in_bytes,omitempty"`
}

// PathsData is the parsed form of a package's info/paths.json.
type PathsData struct {
	PathsVersion int         `json:"paths_version"`
	Paths        []PathEntry `json:"paths"`
}

// LinkInfo records how a package's files were placed into a prefix.
type LinkInfo struct {
	Source string `json:"source"`
	Type   string `json:"type"` // "hardlink" | "softlink" | "copy"
}

// PrefixRecord is a RepoDataRecord plus the bookkeeping written to
// <prefix>/conda-meta/<name>-<version>-<build>.json after a successful
// link.
type PrefixRecord struct {
	RepoDataRecord
	Files          []string  `json:"files"`
	PathsData      PathsData `json:"paths_data"`
	Link           LinkInfo  `json:"link"`
	RequestedSpec  string    `json:"requested_spec,omitempty"`
}

// MetaFileName returns the conda-meta/<name>-<version>-<build>.json
// filename for this record.
func (p PrefixRecord) MetaFileName() string {
	return p.PackageRecord.Key() + ".json"
}
