// Package solver implements the dependency resolution decision
// procedure over the matchspec version-set algebra: given a root set
// of specs plus constraints, locked/pinned records, and virtual
// packages, it produces an ordered set of records that simultaneously
// satisfy every root spec, or a conflict report explaining why none
// exists.
//
// The algorithm is a depth-first backtracking search with constraint
// propagation; it has no direct teacher analog (the teacher shells out
// to pixi/uv rather than solving in-process) and is built fresh,
// grounded on the guarantees enumerated in
// original_source/crates/rattler_solve and rattler_libsolv_rs.
package solver

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/nebari-dev/rattler-go/internal/matchspec"
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
	"github.com/nebari-dev/rattler-go/internal/rerrors"
	"github.com/nebari-dev/rattler-go/internal/version"
)

// Strategy picks which candidate a tie is broken towards.
type Strategy int

const (
	Highest Strategy = iota
	LowestVersion
	LowestVersionDirect
)

// ChannelPriority controls whether a solution may mix channels for one
// package name.
type ChannelPriority int

const (
	ChannelPriorityStrict ChannelPriority = iota
	ChannelPriorityDisabled
)

// AvailablePackages enumerates solver candidates per package name,
// typically backed by the repodata gateway.
type AvailablePackages interface {
	Candidates(name string) []pkgrecord.RepoDataRecord
}

// StaticAvailable is an in-memory AvailablePackages, useful for tests
// and for pre-fetched/offline solves.
type StaticAvailable map[string][]pkgrecord.RepoDataRecord

func (s StaticAvailable) Candidates(name string) []pkgrecord.RepoDataRecord { return s[name] }

// Input is everything the solver needs to produce a solution (spec
// §4.G).
type Input struct {
	RootSpecs       []string
	Constraints     []string
	Locked          []pkgrecord.PackageRecord
	Pinned          []pkgrecord.PackageRecord
	VirtualPackages []pkgrecord.PackageRecord
	Available       AvailablePackages
	ChannelPriority ChannelPriority
	Strategy        Strategy
	Timeout         time.Duration
	ExcludeNewer    int64 // unix seconds; 0 disables the filter
}

// Solve runs the decision procedure. On success it returns a
// topologically sorted record list; on failure (ctxErr aside) it
// returns a ConflictReport.
func Solve(ctx context.Context, in Input) ([]pkgrecord.RepoDataRecord, *ConflictReport, error) {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	rootSpecs := make([]matchspec.MatchSpec, 0, len(in.RootSpecs))
	for _, s := range in.RootSpecs {
		ms, err := matchspec.Parse(s)
		if err != nil {
			return nil, nil, rerrors.New(rerrors.KindInvalidMatchSpec, "solver.Solve", err)
		}
		rootSpecs = append(rootSpecs, ms)
	}

	constraints := make(map[string][]matchspec.MatchSpec)
	for _, s := range in.Constraints {
		ms, err := matchspec.Parse(s)
		if err != nil {
			return nil, nil, rerrors.New(rerrors.KindInvalidMatchSpec, "solver.Solve", err)
		}
		constraints[ms.Name] = append(constraints[ms.Name], ms)
	}

	st := &state{
		in:          in,
		rootSpecs:   rootSpecs,
		constraints: constraints,
		assigned:    make(map[string]pkgrecord.RepoDataRecord),
		channelOf:   make(map[string]string),
		virtual:     indexVirtual(in.VirtualPackages),
		pinned:      indexByName(in.Pinned),
		locked:      indexByName(in.Locked),
		directNames: directNamesOf(rootSpecs),
		trail:       nil,
	}

	needed := make([]string, 0, len(rootSpecs))
	for _, ms := range rootSpecs {
		needed = append(needed, ms.Name)
	}

	ok, err := st.assignAll(ctx, needed)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, st.conflictReport(), nil
	}

	out := make([]pkgrecord.PackageRecord, 0, len(st.assigned))
	byKey := make(map[string]pkgrecord.RepoDataRecord, len(st.assigned))
	for _, r := range st.assigned {
		out = append(out, r.PackageRecord)
		byKey[r.PackageRecord.Key()] = r
	}
	sorted := pkgrecord.TopoSort(out)

	result := make([]pkgrecord.RepoDataRecord, 0, len(sorted))
	for _, pr := range sorted {
		result = append(result, byKey[pr.Key()])
	}
	return result, nil, nil
}

type state struct {
	in          Input
	rootSpecs   []matchspec.MatchSpec
	constraints map[string][]matchspec.MatchSpec
	directNames map[string]bool

	assigned  map[string]pkgrecord.RepoDataRecord
	channelOf map[string]string // name -> channel locked in (Strict priority)

	virtual map[string][]pkgrecord.PackageRecord
	pinned  map[string]pkgrecord.PackageRecord
	locked  map[string]pkgrecord.PackageRecord

	trail []conflictEdge
}

func indexByName(records []pkgrecord.PackageRecord) map[string]pkgrecord.PackageRecord {
	out := make(map[string]pkgrecord.PackageRecord, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}

func indexVirtual(records []pkgrecord.PackageRecord) map[string][]pkgrecord.PackageRecord {
	out := make(map[string][]pkgrecord.PackageRecord)
	for _, r := range records {
		out[r.Name] = append(out[r.Name], r)
	}
	return out
}

func directNamesOf(specs []matchspec.MatchSpec) map[string]bool {
	out := make(map[string]bool, len(specs))
	for _, s := range specs {
		out[s.Name] = true
	}
	return out
}

// assignAll resolves every name in queue (and anything they transitively
// depend on), backtracking on conflicts.
func (st *state) assignAll(ctx context.Context, queue []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, rerrors.New(rerrors.KindSolveTimeout, "solver.assignAll", err)
	}
	if len(queue) == 0 {
		return true, nil
	}

	name := queue[0]
	rest := queue[1:]

	if _, ok := st.assigned[name]; ok {
		return st.assignAll(ctx, rest)
	}
	if _, ok := st.virtual[name]; ok {
		// Virtual packages are always considered present; nothing to assign.
		return st.assignAll(ctx, rest)
	}

	candidates, err := st.candidatesFor(name)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		st.trail = append(st.trail, conflictEdge{name: name, reason: "no candidates available"})
		return false, nil
	}

	for _, c := range candidates {
		if !st.satisfiesActiveConstraints(c.PackageRecord) {
			continue
		}
		if st.in.ChannelPriority == ChannelPriorityStrict {
			if locked, ok := st.channelOf[name]; ok && locked != c.ChannelName {
				continue
			}
		}

		st.assigned[name] = c
		st.channelOf[name] = c.ChannelName

		depQueue := append([]string(nil), rest...)
		for _, dep := range c.Depends {
			depName := dependencyName(dep)
			if depName != "" {
				depQueue = append(depQueue, depName)
			}
		}

		ok, err := st.assignAll(ctx, depQueue)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		delete(st.assigned, name)
		delete(st.channelOf, name)
	}

	st.trail = append(st.trail, conflictEdge{name: name, reason: "no candidate satisfies constraints"})
	return false, nil
}

// satisfiesActiveConstraints checks record against every "constrains"
// entry published by an already-chosen package, per spec §4.G:
// "constrains of a chosen record c restrict any other chosen record d
// that matches the constrained name".
func (st *state) satisfiesActiveConstraints(r pkgrecord.PackageRecord) bool {
	for _, assigned := range st.assigned {
		for _, c := range assigned.Constrains {
			ms, err := matchspec.Parse(c)
			if err != nil || ms.Name != r.Name {
				continue
			}
			if !ms.Matches(r) {
				return false
			}
		}
	}
	for _, ms := range st.constraints[r.Name] {
		if !ms.Matches(r) {
			return false
		}
	}
	return true
}

// candidatesFor returns the eligible, ordered candidate list for name:
// pinned overrides everything; otherwise root specs filter, exclude_newer
// applies, and ordering follows strategy + favor + tracked-features.
func (st *state) candidatesFor(name string) ([]pkgrecord.RepoDataRecord, error) {
	if pinned, ok := st.pinned[name]; ok {
		for _, c := range st.available(name) {
			if c.PackageRecord.Key() == pinned.Key() {
				return []pkgrecord.RepoDataRecord{c}, nil
			}
		}
		return []pkgrecord.RepoDataRecord{{PackageRecord: pinned}}, nil
	}

	all := st.available(name)
	var spec *matchspec.MatchSpec
	for i := range st.rootSpecs {
		if st.rootSpecs[i].Name == name {
			s := st.rootSpecs[i]
			spec = &s
			break
		}
	}

	filtered := make([]pkgrecord.RepoDataRecord, 0, len(all))
	for _, c := range all {
		if spec != nil && !spec.Matches(c.PackageRecord) {
			continue
		}
		if !st.excludeNewerEligible(c, all) {
			continue
		}
		filtered = append(filtered, c)
	}

	strategy := st.in.Strategy
	if strategy == LowestVersionDirect {
		if st.directNames[name] {
			strategy = LowestVersion
		} else {
			strategy = Highest
		}
	}

	sortCandidates(filtered, strategy, st.locked)
	return filtered, nil
}

func (st *state) available(name string) []pkgrecord.RepoDataRecord {
	if st.in.Available == nil {
		return nil
	}
	return st.in.Available.Candidates(name)
}

// excludeNewerEligible implements: timestamp <= exclude_newer; for
// equal (name, version, build), a .conda record excluded by this rule
// becomes eligible again via its .tar.bz2 sibling if that sibling is
// itself within the window.
func (st *state) excludeNewerEligible(c pkgrecord.RepoDataRecord, all []pkgrecord.RepoDataRecord) bool {
	if st.in.ExcludeNewer == 0 {
		return true
	}
	if c.Timestamp <= st.in.ExcludeNewer {
		return true
	}
	if !strings.HasSuffix(c.FileName, ".conda") {
		return false
	}
	for _, sibling := range all {
		if sibling.Name == c.Name && sibling.Version == c.Version && sibling.Build == c.Build &&
			strings.HasSuffix(sibling.FileName, ".tar.bz2") && sibling.Timestamp <= st.in.ExcludeNewer {
			return false // the .tar.bz2 sibling takes over this identity, not this .conda record
		}
	}
	return false
}

func sortCandidates(records []pkgrecord.RepoDataRecord, strategy Strategy, locked map[string]pkgrecord.PackageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]

		if fav, ok := favorRule(a, b, locked); ok {
			return fav
		}
		if (len(a.TrackFeatures) > 0) != (len(b.TrackFeatures) > 0) {
			return len(a.TrackFeatures) == 0 // featureless record sorts first (preferred)
		}

		less := compareIdentity(a, b) < 0
		if strategy == LowestVersion {
			return less
		}
		return !less
	})
}

// favorRule reports (preferA, true) when one of a/b is the locked
// record for its name and should be preferred over an otherwise-tied
// candidate.
func favorRule(a, b pkgrecord.RepoDataRecord, locked map[string]pkgrecord.PackageRecord) (bool, bool) {
	l, ok := locked[a.Name]
	if !ok {
		return false, false
	}
	aIsLocked := a.Key() == l.Key()
	bIsLocked := b.Key() == l.Key()
	if aIsLocked == bIsLocked {
		return false, false
	}
	return aIsLocked, true
}

// compareIdentity orders by (version, build_number, timestamp),
// ascending.
func compareIdentity(a, b pkgrecord.RepoDataRecord) int {
	if a.Version != b.Version {
		av, aErr := version.Parse(a.Version)
		bv, bErr := version.Parse(b.Version)
		if aErr == nil && bErr == nil {
			return int(version.Compare(av, bv))
		}
		if a.Version < b.Version {
			return -1
		}
		return 1
	}
	if a.BuildNumber != b.BuildNumber {
		if a.BuildNumber < b.BuildNumber {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return 0
}

func dependencyName(spec string) string {
	i := 0
	for i < len(spec) && spec[i] != ' ' && spec[i] != '[' {
		i++
	}
	return spec[:i]
}
