package version

import "strconv"

// String renders the normalized form of v. Parse(v.String()) re-parses
// to a value that compares Equal to v (round-trip law, spec §8); it is
// not guaranteed to be byte-identical to the original input (e.g. "1-2"
// normalizes to "1.2", and case is lowered).
func (v Version) String() string {
	var b []byte
	if v.epoch != 0 {
		b = append(b, []byte(strconv.FormatUint(v.epoch, 10))...)
		b = append(b, '!')
	}
	b = appendSegments(b, v.segments)
	if len(v.local) > 0 {
		b = append(b, '+')
		b = appendSegments(b, v.local)
	}
	return string(b)
}

func appendSegments(b []byte, segs []segment) []byte {
	for i, seg := range segs {
		if i > 0 {
			b = append(b, '.')
		}
		for _, c := range seg {
			if c.kind == kindNumeric {
				b = append(b, []byte(strconv.FormatInt(c.num, 10))...)
			} else {
				b = append(b, []byte(c.text)...)
			}
		}
	}
	return b
}

// Epoch returns the version's epoch (0 if unspecified).
func (v Version) Epoch() uint64 { return v.epoch }

// IsZero reports whether v is the zero Version value (never produced by
// Parse; useful for detecting an uninitialized field).
func (v Version) IsZero() bool { return v.segments == nil && v.epoch == 0 && v.local == nil }
