package version

// bumpKind distinguishes the three ways a BumpTarget can pick a segment
// index: a fixed absolute index (Major/Minor/Patch), the version's last
// segment (Last), or a Python-style possibly-negative index (Segment).
type bumpKind int

const (
	bumpAbsolute bumpKind = iota
	bumpLast
	bumpIndex
)

// BumpTarget selects which segment Bump increments.
type BumpTarget struct {
	kind bumpKind
	idx  int
}

var (
	// Major bumps segment 0.
	Major = BumpTarget{kind: bumpAbsolute, idx: 0}
	// Minor bumps segment 1.
	Minor = BumpTarget{kind: bumpAbsolute, idx: 1}
	// Patch bumps segment 2.
	Patch = BumpTarget{kind: bumpAbsolute, idx: 2}
	// Last bumps the version's final segment.
	Last = BumpTarget{kind: bumpLast}
)

// Segment selects a segment by index; negative indices count from the
// end as in Python (-1 is the last segment), matching spec example
// bump(Segment(-1)) of "1.1.9" -> "1.1.10".
func Segment(i int) BumpTarget { return BumpTarget{kind: bumpIndex, idx: i} }

func (t BumpTarget) resolve(n int) int {
	switch t.kind {
	case bumpLast:
		if n == 0 {
			return 0
		}
		return n - 1
	case bumpIndex:
		i := t.idx
		if i < 0 {
			i = n + i
		}
		if i < 0 {
			i = 0
		}
		return i
	default:
		return t.idx
	}
}

// Bump returns a new version with the target segment's last numeric
// component incremented by one. If the segment ends with an identifier,
// that identifier is replaced with "a" (so "1.1l" bumped at Last becomes
// "1.2a"). Missing segments are extended with zeros first.
func Bump(v Version, target BumpTarget) Version {
	segs := cloneSegments(v.segments)
	idx := target.resolve(len(segs))
	for len(segs) <= idx {
		segs = append(segs, cloneSegment(padSegment))
	}
	segs[idx] = bumpSegment(segs[idx])
	out := Version{epoch: v.epoch, segments: segs, local: v.local}
	out.raw = out.String()
	return out
}

// BumpWithAlpha bumps like Bump, then appends a ".0a0" segment so the
// result excludes any alpha/beta prerelease of the bumped version (e.g.
// for building an upper-bound range end in a "~=" compatible-release
// spec).
func BumpWithAlpha(v Version, target BumpTarget) Version {
	bumped := Bump(v, target)
	alphaSeg := segment{
		{kind: kindNumeric, num: 0},
		{kind: kindIdent, text: "a"},
		{kind: kindNumeric, num: 0},
	}
	segs := append(cloneSegments(bumped.segments), alphaSeg)
	out := Version{epoch: bumped.epoch, segments: segs, local: bumped.local}
	out.raw = out.String()
	return out
}

func bumpSegment(seg segment) segment {
	out := cloneSegment(seg)
	if len(out) == 0 {
		return segment{{kind: kindNumeric, num: 1}}
	}
	if out[len(out)-1].kind == kindIdent {
		out[len(out)-1] = component{kind: kindIdent, text: "a"}
	}
	lastNumeric := -1
	for i, c := range out {
		if c.kind == kindNumeric {
			lastNumeric = i
		}
	}
	if lastNumeric == -1 {
		out = append(segment{{kind: kindNumeric, num: 1}}, out...)
	} else {
		out[lastNumeric].num++
	}
	return out
}

func cloneSegments(segs []segment) []segment {
	out := make([]segment, len(segs))
	for i, s := range segs {
		out[i] = cloneSegment(s)
	}
	return out
}

func cloneSegment(seg segment) segment {
	out := make(segment, len(seg))
	copy(out, seg)
	return out
}
