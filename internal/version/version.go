// Package version implements Conda's version ordering: an optional
// epoch, dot/underscore separated segments of alphanumeric components,
// and an optional "+local" suffix with the same segment structure.
//
// Grounded on original_source/crates/rattler_conda_types/src/version/{parse,bump}.rs
// for exact tie-break and bump semantics, adapted into the teacher's
// parse-then-validate, typed-error idiom (internal/rerrors).
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// componentKind distinguishes numeric from identifier components within
// a segment, and the special identifiers that get bespoke ordering.
type componentKind int

const (
	kindNumeric componentKind = iota
	kindIdent
)

// component is one maximal run of digits or letters within a segment.
type component struct {
	kind componentKind
	num  int64  // valid when kind == kindNumeric
	text string // valid when kind == kindIdent, already lower-cased
}

// special identifier ranks, used when comparing two kindIdent components.
// "dev" sorts below everything; any other identifier sorts above dev;
// "" (implicit, used when a segment is shorter) sorts above identifiers
// and below numbers; "post" (also appended for a trailing "_") sorts
// above numbers as if +infinity.
const (
	rankDev      = -2
	rankIdent    = -1 // any other identifier
	rankEmpty    = 0
	rankNumeric  = 1
	rankPost     = 2
)

func (c component) rank() int {
	if c.kind == kindNumeric {
		return rankNumeric
	}
	switch c.text {
	case "dev":
		return rankDev
	case "":
		return rankEmpty
	case "post":
		return rankPost
	default:
		return rankIdent
	}
}

// segment is a sequence of components; invariant: len(components) >= 1
// and components[0].kind == kindNumeric (a synthetic 0 is inserted when
// the parsed first component is an identifier, e.g. "post1" -> [0, post, 1]).
type segment []component

// Version is an immutable, comparable Conda version value.
type Version struct {
	epoch    uint64
	segments []segment
	local    []segment // nil if no "+local" part
	raw      string    // input given to Parse; Bump results store their String() form
}

// Parse parses a Conda version string.
func Parse(s string) (Version, error) {
	v, _, err := parseInto(s)
	if err != nil {
		return Version{}, rerrors.New(rerrors.KindInvalidVersion, "version.parse", err)
	}
	return v, nil
}

// MustParse panics on an invalid version string; for use with literal
// constants only.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseInto(s string) (Version, string, error) {
	orig := s
	if s == "" {
		return Version{}, orig, strErr("empty version")
	}
	if strings.Count(s, "!") > 1 {
		return Version{}, orig, strErr("multiple '!' in version")
	}
	if strings.Count(s, "+") > 1 {
		return Version{}, orig, strErr("multiple '+' in version")
	}

	lower := strings.ToLower(s)

	var epoch uint64
	rest := lower
	if idx := strings.IndexByte(lower, '!'); idx >= 0 {
		epochStr := lower[:idx]
		n, err := strconv.ParseUint(epochStr, 10, 64)
		if err != nil {
			return Version{}, orig, strErr("invalid epoch %q", epochStr)
		}
		epoch = n
		rest = lower[idx+1:]
	}

	// '-' is accepted only when '_' is absent, then mapped to '_'.
	if strings.ContainsRune(rest, '-') {
		if strings.ContainsRune(rest, '_') {
			return Version{}, orig, strErr("version cannot mix '-' and '_'")
		}
		rest = strings.ReplaceAll(rest, "-", "_")
	}

	var localPart string
	main := rest
	if idx := strings.IndexByte(rest, '+'); idx >= 0 {
		main = rest[:idx]
		localPart = rest[idx+1:]
		if localPart == "" {
			return Version{}, orig, strErr("empty local segment after '+'")
		}
	}

	if main == "" {
		return Version{}, orig, strErr("empty version body")
	}

	// A trailing '_' makes the last segment post-like: it is dropped and
	// a "post" component is appended to that segment instead.
	postLike := strings.HasSuffix(main, "_")
	main = strings.TrimSuffix(main, "_")

	segs, err := parseSegments(main)
	if err != nil {
		return Version{}, orig, err
	}
	if postLike {
		last := len(segs) - 1
		segs[last] = append(segs[last], component{kind: kindIdent, text: "post"})
	}

	var localSegs []segment
	if localPart != "" {
		localSegs, err = parseSegments(localPart)
		if err != nil {
			return Version{}, orig, err
		}
	}

	return Version{epoch: epoch, segments: segs, local: localSegs, raw: orig}, orig, nil
}

// parseSegments splits on '.' and '_' into segments of components.
func parseSegments(s string) ([]segment, error) {
	parts := splitDotUnderscore(s)
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		comps, err := parseComponents(p)
		if err != nil {
			return nil, err
		}
		segs = append(segs, comps)
	}
	return segs, nil
}

// splitDotUnderscore splits on '.' or '_', treating consecutive
// separators and leading/trailing separators as producing empty parts
// (which parseComponents turns into a numeric 0 segment).
func splitDotUnderscore(s string) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '_' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseComponents(s string) (segment, error) {
	if s == "" {
		return segment{{kind: kindNumeric, num: 0}}, nil
	}

	var comps []component
	i := 0
	for i < len(s) {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		j := i + 1
		for j < len(s) {
			d := s[j]
			dDigit := d >= '0' && d <= '9'
			if dDigit != isDigit {
				break
			}
			j++
		}
		chunk := s[i:j]
		if isDigit {
			n, err := strconv.ParseInt(chunk, 10, 64)
			if err != nil {
				return nil, strErr("numeric component too large: %q", chunk)
			}
			comps = append(comps, component{kind: kindNumeric, num: n})
		} else {
			if !isAlpha(chunk) {
				return nil, strErr("invalid character in version: %q", chunk)
			}
			comps = append(comps, component{kind: kindIdent, text: chunk})
		}
		i = j
	}

	if len(comps) == 0 {
		return segment{{kind: kindNumeric, num: 0}}, nil
	}
	// First component of a segment must be numeric; insert a synthetic 0.
	if comps[0].kind != kindNumeric {
		comps = append([]component{{kind: kindNumeric, num: 0}}, comps...)
	}
	return comps, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

func strErr(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
