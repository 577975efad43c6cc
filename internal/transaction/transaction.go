// Package transaction diffs an installed prefix against a desired set
// of records and produces an ordered operation plan for the installer.
//
// Grounded on the teacher's internal/diff package (name-indexed
// before/after comparison producing typed change records) and
// internal/drift (detecting what changed about an installed artifact),
// adapted to PrefixRecord/RepoDataRecord identity per
// original_source/crates/rattler/src/install/transaction.rs.
package transaction

import (
	"github.com/google/uuid"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

// OpKind classifies one operation in a transaction plan.
type OpKind int

const (
	OpInstall OpKind = iota
	OpRemove
	OpChange
	OpReinstall
	OpUpgrade
	OpDowngrade
)

func (k OpKind) String() string {
	switch k {
	case OpInstall:
		return "install"
	case OpRemove:
		return "remove"
	case OpChange:
		return "change"
	case OpReinstall:
		return "reinstall"
	case OpUpgrade:
		return "upgrade"
	case OpDowngrade:
		return "downgrade"
	default:
		return "unknown"
	}
}

// Operation is one step of a transaction plan.
type Operation struct {
	Kind     OpKind
	Name     string
	Before   *pkgrecord.PrefixRecord
	After    *pkgrecord.RepoDataRecord
}

// PythonInfo captures enough about an installed Python interpreter to
// drive noarch-python entry-point retargeting across a version change.
type PythonInfo struct {
	Version      string
	ShortVersion string
	SitePackages string
	BinDir       string
}

// Transaction is the full diff between an installed prefix and a
// desired set of records, with operations pre-ordered for execution:
// removals first (reverse topological), then installs (topological).
type Transaction struct {
	ID               string
	Operations       []Operation
	PythonInfoBefore *PythonInfo
	PythonInfoAfter  *PythonInfo
}

// Options controls diff classification decisions that are not implied
// purely by record identity.
type Options struct {
	ForceReinstall bool
}

// Diff computes a Transaction moving from installed to desired.
func Diff(installed []pkgrecord.PrefixRecord, desired []pkgrecord.RepoDataRecord, opts Options) Transaction {
	installedByName := make(map[string]pkgrecord.PrefixRecord, len(installed))
	for _, r := range installed {
		installedByName[r.Name] = r
	}
	desiredByName := make(map[string]pkgrecord.RepoDataRecord, len(desired))
	for _, r := range desired {
		desiredByName[r.Name] = r
	}

	var removes, installs, others []Operation

	for name, before := range installedByName {
		if _, ok := desiredByName[name]; !ok {
			b := before
			removes = append(removes, Operation{Kind: OpRemove, Name: name, Before: &b})
		}
	}

	for name, after := range desiredByName {
		before, existed := installedByName[name]
		a := after
		if !existed {
			installs = append(installs, Operation{Kind: OpInstall, Name: name, After: &a})
			continue
		}

		b := before
		if sameIdentity(before, after) {
			if opts.ForceReinstall {
				others = append(others, Operation{Kind: OpReinstall, Name: name, Before: &b, After: &a})
			}
			continue // identical, no-op unless explicitly forced
		}

		kind := classifyChange(before, after)
		others = append(others, Operation{Kind: kind, Name: name, Before: &b, After: &a})
	}

	ordered := topoOrderRemoves(nil, removes)
	ordered = append(ordered, others...)
	ordered = topoOrderInstalls(ordered, installs)

	tx := Transaction{ID: uuid.NewString(), Operations: ordered}

	if before, ok := installedByName["python"]; ok {
		tx.PythonInfoBefore = pythonInfoFrom(before.PackageRecord)
	}
	if after, ok := desiredByName["python"]; ok {
		tx.PythonInfoAfter = pythonInfoFrom(after.PackageRecord)
	}

	return tx
}

func sameIdentity(before pkgrecord.PrefixRecord, after pkgrecord.RepoDataRecord) bool {
	return before.Version == after.Version && before.Build == after.Build && before.URL == after.URL
}

// classifyChange compares (version, build_number) to decide Upgrade,
// Downgrade, or a same-version Change (build string differs, build
// number equal).
func classifyChange(before pkgrecord.PrefixRecord, after pkgrecord.RepoDataRecord) OpKind {
	ordering := compareVersionBuild(before.Version, before.BuildNumber, after.Version, after.BuildNumber)
	switch {
	case ordering < 0:
		return OpUpgrade
	case ordering > 0:
		return OpDowngrade
	default:
		return OpChange
	}
}

func pythonInfoFrom(r pkgrecord.PackageRecord) *PythonInfo {
	short := r.Version
	if i := lastDotBeforeSecondComponent(short); i > 0 {
		short = short[:i]
	}
	return &PythonInfo{
		Version:      r.Version,
		ShortVersion: short,
		SitePackages: r.PythonSitePackagesPath,
	}
}

// lastDotBeforeSecondComponent finds the index of the second dot in a
// version string like "3.11.4" so ShortVersion becomes "3.11".
func lastDotBeforeSecondComponent(v string) int {
	count := 0
	for i, c := range v {
		if c == '.' {
			count++
			if count == 2 {
				return i
			}
		}
	}
	return -1
}

// topoOrderInstalls appends installs to ordered, topologically sorted
// by dependency so a package's dependencies link before it.
func topoOrderInstalls(ordered []Operation, installs []Operation) []Operation {
	records := make([]pkgrecord.PackageRecord, 0, len(installs))
	byName := make(map[string]Operation, len(installs))
	for _, op := range installs {
		records = append(records, op.After.PackageRecord)
		byName[op.Name] = op
	}
	sorted := pkgrecord.TopoSort(records)
	for _, r := range sorted {
		ordered = append(ordered, byName[r.Name])
	}
	return ordered
}

// topoOrderRemoves appends removes to ordered in reverse topological
// order, so a dependent is unlinked before the package it depends on.
// Go map iteration order is randomized, so removes needs the same
// dependency sort as topoOrderInstalls applies to installs, just
// walked backwards.
func topoOrderRemoves(ordered []Operation, removes []Operation) []Operation {
	records := make([]pkgrecord.PackageRecord, 0, len(removes))
	byName := make(map[string]Operation, len(removes))
	for _, op := range removes {
		records = append(records, op.Before.PackageRecord)
		byName[op.Name] = op
	}
	sorted := pkgrecord.TopoSort(records)
	for i := len(sorted) - 1; i >= 0; i-- {
		ordered = append(ordered, byName[sorted[i].Name])
	}
	return ordered
}
