// Package matchspec implements Conda's MatchSpec: a package predicate
// parsed from a compact string grammar and evaluated against
// PackageRecord values, plus the version-set algebra the solver uses
// for conflict resolution.
//
// Grounded on the teacher's internal/diff (compact predicate parsing over
// textual tokens) and internal/localindex (tolerant field-by-field
// matching), adapted to Conda's MatchSpec grammar from
// original_source/crates/rattler_conda_types/src/match_spec/condition.rs.
package matchspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
	"github.com/nebari-dev/rattler-go/internal/version"
)

// BuildNumberOp is a comparison operator over a record's build number.
type BuildNumberOp int

const (
	BNEq BuildNumberOp = iota
	BNNe
	BNLt
	BNLe
	BNGt
	BNGe
)

// BuildNumberSpec constrains PackageRecord.BuildNumber.
type BuildNumberSpec struct {
	Op    BuildNumberOp
	Value int64
}

// Contains reports whether n satisfies the build-number constraint.
func (b BuildNumberSpec) Contains(n int64) bool {
	switch b.Op {
	case BNEq:
		return n == b.Value
	case BNNe:
		return n != b.Value
	case BNLt:
		return n < b.Value
	case BNLe:
		return n <= b.Value
	case BNGt:
		return n > b.Value
	case BNGe:
		return n >= b.Value
	}
	return false
}

// MatchSpec is the parsed predicate over a package's identity and
// metadata. Every field is optional (zero value meaning "unconstrained")
// except where a presence flag is needed to distinguish "unset" from a
// legitimate zero value.
type MatchSpec struct {
	Name    string
	Channel string
	Subdir  string

	HasVersion bool
	Version    version.Spec

	Build string // exact string or glob containing "*"

	HasBuildNumber bool
	BuildNumber    BuildNumberSpec

	URL    string
	SHA256 string
	MD5    string

	TrackFeatures []string
	Features      []string
	License       string

	Namespace string
}

// Parse parses a MatchSpec string per spec §4.B's grammar:
//
//	matchspec  := [channel '::'] name [version] [build] ['[' attrs ']']
//	attrs      := attr (',' attr)*
//	attr       := key '=' (qstring | bareword)
func Parse(s string) (MatchSpec, error) {
	m, err := parse(s)
	if err != nil {
		return MatchSpec{}, rerrors.New(rerrors.KindInvalidMatchSpec, "matchspec.parse", err)
	}
	return m, nil
}

func parse(s string) (MatchSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MatchSpec{}, strErr("empty matchspec")
	}

	var m MatchSpec

	attrsPart := ""
	if idx := strings.IndexByte(s, '['); idx >= 0 {
		if !strings.HasSuffix(s, "]") {
			return MatchSpec{}, strErr("unbalanced '[' in matchspec %q", s)
		}
		attrsPart = s[idx+1 : len(s)-1]
		s = strings.TrimSpace(s[:idx])
	}

	if idx := strings.Index(s, "::"); idx >= 0 {
		m.Channel = s[:idx]
		s = s[idx+2:]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return MatchSpec{}, strErr("matchspec has no name")
	}
	m.Name = fields[0]
	if len(fields) >= 2 {
		spec, err := version.ParseSpec(fields[1])
		if err != nil {
			return MatchSpec{}, err
		}
		m.Version = spec
		m.HasVersion = true
	}
	if len(fields) >= 3 {
		m.Build = fields[2]
	}
	if len(fields) > 3 {
		return MatchSpec{}, strErr("too many bare tokens in matchspec %q", s)
	}

	if attrsPart != "" {
		if err := applyAttrs(&m, attrsPart); err != nil {
			return MatchSpec{}, err
		}
	}

	return m, nil
}

func applyAttrs(m *MatchSpec, attrs string) error {
	for _, attr := range splitAttrs(attrs) {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		eq := strings.IndexByte(attr, '=')
		if eq < 0 {
			return strErr("attribute %q missing '='", attr)
		}
		key := strings.TrimSpace(attr[:eq])
		val := strings.TrimSpace(attr[eq+1:])
		val = unquote(val)

		switch key {
		case "version":
			spec, err := version.ParseSpec(val)
			if err != nil {
				return err
			}
			m.Version = spec
			m.HasVersion = true
		case "build":
			m.Build = val
		case "build_number":
			bn, err := parseBuildNumber(val)
			if err != nil {
				return err
			}
			m.BuildNumber = bn
			m.HasBuildNumber = true
		case "subdir":
			m.Subdir = val
		case "channel":
			m.Channel = val
		case "url":
			m.URL = val
		case "sha256":
			m.SHA256 = val
		case "md5":
			m.MD5 = val
		case "license":
			m.License = val
		case "track_features":
			m.TrackFeatures = splitFeatureList(val)
		case "features":
			m.Features = splitFeatureList(val)
		case "namespace":
			m.Namespace = val
		default:
			// Unknown attrs are ignored per the teacher's tolerant
			// field-by-field parsing convention (forward compatibility).
		}
	}
	return nil
}

// splitAttrs splits on top-level commas only (commas inside quoted
// strings are preserved).
func splitAttrs(s string) []string {
	var out []string
	depth := 0
	start := 0
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitFeatureList(s string) []string {
	parts := strings.Split(s, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBuildNumber(s string) (BuildNumberSpec, error) {
	ops := []struct {
		prefix string
		op     BuildNumberOp
	}{
		{">=", BNGe}, {"<=", BNLe}, {"==", BNEq}, {"!=", BNNe}, {">", BNGt}, {"<", BNLt},
	}
	for _, o := range ops {
		if strings.HasPrefix(s, o.prefix) {
			n, err := strconv.ParseInt(strings.TrimSpace(s[len(o.prefix):]), 10, 64)
			if err != nil {
				return BuildNumberSpec{}, strErr("invalid build_number %q", s)
			}
			return BuildNumberSpec{Op: o.op, Value: n}, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return BuildNumberSpec{}, strErr("invalid build_number %q", s)
	}
	return BuildNumberSpec{Op: BNEq, Value: n}, nil
}

// Matches reports whether r satisfies every present field of m.
func (m MatchSpec) Matches(r pkgrecord.PackageRecord) bool {
	if m.Name != "" && m.Name != "*" && m.Name != r.Name {
		return false
	}
	if m.HasVersion {
		v, err := version.Parse(r.Version)
		if err != nil || !m.Version.Contains(v) {
			return false
		}
	}
	if m.Build != "" && !matchBuild(m.Build, r.Build) {
		return false
	}
	if m.HasBuildNumber && !m.BuildNumber.Contains(r.BuildNumber) {
		return false
	}
	if m.Subdir != "" && m.Subdir != r.Subdir {
		return false
	}
	if m.SHA256 != "" && m.SHA256 != r.SHA256 {
		return false
	}
	if m.MD5 != "" && m.MD5 != r.MD5 {
		return false
	}
	if m.License != "" && m.License != r.License {
		return false
	}
	if len(m.TrackFeatures) > 0 && !setIncludes(r.TrackFeatures, m.TrackFeatures) {
		return false
	}
	if len(m.Features) > 0 {
		recordFeatures := strings.Split(r.Features, " ")
		if !setIncludes(recordFeatures, m.Features) {
			return false
		}
	}
	return true
}

// MatchesRepoData reports whether rd's channel/url also satisfy m, in
// addition to the PackageRecord match.
func (m MatchSpec) MatchesRepoData(rd pkgrecord.RepoDataRecord) bool {
	if !m.Matches(rd.PackageRecord) {
		return false
	}
	if m.Channel != "" && m.Channel != rd.ChannelName {
		return false
	}
	if m.URL != "" && m.URL != rd.URL {
		return false
	}
	return true
}

func matchBuild(pattern, build string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == build
	}
	ok, err := doublestar.Match(pattern, build)
	return err == nil && ok
}

func setIncludes(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func strErr(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
