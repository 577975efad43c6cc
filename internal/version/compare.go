package version

// padComponent is the implicit component used when one segment has
// fewer components than its counterpart; it ranks as "empty" (between
// dev/identifiers and numeric, see component.rank).
var padComponent = component{kind: kindIdent, text: ""}

// padSegment is the implicit segment used when one version has fewer
// segments than its counterpart; equivalent to an explicit ".0" segment
// so that Parse("1.0") and Parse("1") compare Equal.
var padSegment = segment{{kind: kindNumeric, num: 0}}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Compare returns the total order between a and b: Less, Equal, or
// Greater. Comparison is lexicographic over (epoch, segments, local).
func Compare(a, b Version) Ordering {
	if a.epoch != b.epoch {
		if a.epoch < b.epoch {
			return Less
		}
		return Greater
	}
	if o := compareSegmentLists(a.segments, b.segments); o != Equal {
		return o
	}
	return compareSegmentLists(a.local, b.local)
}

// Cmp is an alias for Compare matching the contract name in spec §4.A.
func Cmp(a, b Version) Ordering { return Compare(a, b) }

// SameAs reports whether a and b compare Equal.
func SameAs(a, b Version) bool { return Compare(a, b) == Equal }

// IsLess reports whether a < b.
func IsLess(a, b Version) bool { return Compare(a, b) == Less }

func compareSegmentLists(a, b []segment) Ordering {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var sa, sb segment
		if i < len(a) {
			sa = a[i]
		} else {
			sa = padSegment
		}
		if i < len(b) {
			sb = b[i]
		} else {
			sb = padSegment
		}
		if o := compareSegments(sa, sb); o != 0 {
			return o
		}
	}
	return 0
}

func compareSegments(a, b segment) Ordering {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var ca, cb component
		if i < len(a) {
			ca = a[i]
		} else {
			ca = padComponent
		}
		if i < len(b) {
			cb = b[i]
		} else {
			cb = padComponent
		}
		if o := compareComponent(ca, cb); o != 0 {
			return o
		}
	}
	return 0
}

func compareComponent(a, b component) Ordering {
	if a.kind == kindNumeric && b.kind == kindNumeric {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	}
	ra, rb := a.rank(), b.rank()
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	// Equal rank and not both numeric: both must be identifiers (dev,
	// empty pad, or a generic identifier); compare text.
	if a.text < b.text {
		return -1
	}
	if a.text > b.text {
		return 1
	}
	return 0
}

// StartsWith reports whether a is prefixed by b: true iff b is a
// componentwise prefix of a. Epoch must match; b's local part (if any)
// must also prefix a's local part; if b has no local part, a's local
// part is ignored.
func StartsWith(a, b Version) bool {
	if a.epoch != b.epoch {
		return false
	}
	if !segListPrefix(a.segments, b.segments) {
		return false
	}
	if len(b.local) == 0 {
		return true
	}
	return segListPrefix(a.local, b.local)
}

func segListPrefix(a, b []segment) bool {
	if len(b) > len(a) {
		// b may still be a prefix if the extra segments are pad-equivalent.
		for i := len(a); i < len(b); i++ {
			if compareSegments(b[i], padSegment) != 0 {
				return false
			}
		}
	}
	n := len(b)
	if len(a) < n {
		n = len(a)
	}
	for i := 0; i < n; i++ {
		if !segPrefix(a[i], b[i]) {
			return false
		}
	}
	return true
}

func segPrefix(a, b segment) bool {
	if len(b) > len(a) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if compareComponent(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}
