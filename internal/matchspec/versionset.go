package matchspec

import (
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/version"
)

// VersionSet is a MatchSpec internalized as a boolean combination of
// (version-range, build-number-range) predicates, the representation
// the solver uses for conflict resolution (spec §4.B). It supports the
// algebraic operators the solver needs independent of how the set was
// built: Empty/Full/Singleton/Complement/Intersection/Union/Contains.
type VersionSet struct {
	spec     MatchSpec
	negated  bool // wraps the whole predicate, so Complement is O(1)
	compound *compoundSet
}

type compoundOp int

const (
	opAnd compoundOp = iota
	opOr
)

type compoundSet struct {
	op    compoundOp
	left  VersionSet
	right VersionSet
}

// FromMatchSpec internalizes m as a version set.
func FromMatchSpec(m MatchSpec) VersionSet { return VersionSet{spec: m} }

// Empty returns the version set matching no record.
func Empty() VersionSet {
	var m MatchSpec
	m.Name = "\x00impossible\x00"
	return VersionSet{spec: m}
}

// Full returns the version set matching every record (of any name).
func Full() VersionSet {
	return VersionSet{spec: MatchSpec{}}
}

// Singleton returns the version set matching exactly one record
// identity (name, version, build).
func Singleton(r pkgrecord.PackageRecord) VersionSet {
	v, err := version.Parse(r.Version)
	if err != nil {
		return Empty()
	}
	return VersionSet{spec: MatchSpec{
		Name:       r.Name,
		HasVersion: true,
		Version:    version.OpSpec(version.OpEq, v),
		Build:      r.Build,
	}}
}

// Contains reports whether r satisfies the version set.
func (vs VersionSet) Contains(r pkgrecord.PackageRecord) bool {
	if vs.compound != nil {
		left := vs.compound.left.Contains(r)
		right := vs.compound.right.Contains(r)
		if vs.compound.op == opAnd {
			return left && right
		}
		return left || right
	}
	result := vs.spec.Matches(r)
	if vs.negated {
		return !result
	}
	return result
}

// Complement returns the logical negation of vs. For a leaf set this is
// O(1) (just flips a bool); for a compound set it pushes the negation
// down via De Morgan's laws. The underlying version.Spec complements
// used by MatchSpec.Matches are themselves cached (spec §4.B: "cache
// complements"), so repeated complementation during conflict resolution
// does not re-derive the version range each time.
func (vs VersionSet) Complement() VersionSet {
	if vs.compound != nil {
		op := opOr
		if vs.compound.op == opOr {
			op = opAnd
		}
		return VersionSet{compound: &compoundSet{
			op:    op,
			left:  vs.compound.left.Complement(),
			right: vs.compound.right.Complement(),
		}}
	}
	return VersionSet{spec: vs.spec, negated: !vs.negated}
}

// Intersection returns a version set matching records satisfied by both
// a and b.
func Intersection(a, b VersionSet) VersionSet {
	return VersionSet{compound: &compoundSet{op: opAnd, left: a, right: b}}
}

// Union returns a version set matching records satisfied by either a or b.
func Union(a, b VersionSet) VersionSet {
	return VersionSet{compound: &compoundSet{op: opOr, left: a, right: b}}
}
