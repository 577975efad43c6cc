package solver

import (
	"context"
	"testing"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

func rec(name, ver, build string, buildNum int64, depends ...string) pkgrecord.RepoDataRecord {
	return pkgrecord.RepoDataRecord{
		PackageRecord: pkgrecord.PackageRecord{
			Name: name, Version: ver, Build: build, BuildNumber: buildNum,
			Subdir: "linux-64", Depends: depends,
		},
		FileName:    name + "-" + ver + "-" + build + ".conda",
		ChannelName: "conda-forge",
	}
}

func TestSolveSimpleDependencyChain(t *testing.T) {
	avail := StaticAvailable{
		"numpy": {rec("numpy", "1.26.0", "py311h0", 0, "python >=3.11")},
		"python": {
			rec("python", "3.11.0", "h0", 0),
			rec("python", "3.12.0", "h0", 0),
		},
	}

	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"numpy"},
		Available: avail,
		Strategy:  Highest,
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if report != nil {
		t.Fatalf("expected a solution, got conflict: %s", report.Tree())
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (numpy, python), got %d: %+v", len(records), records)
	}
	// python must be linked before numpy (dependency-first order).
	if records[0].Name != "python" || records[1].Name != "numpy" {
		t.Errorf("expected topological order [python, numpy], got [%s, %s]", records[0].Name, records[1].Name)
	}
}

func TestSolveHighestStrategyPicksNewestPython(t *testing.T) {
	avail := StaticAvailable{
		"numpy": {rec("numpy", "1.26.0", "py311h0", 0, "python")},
		"python": {
			rec("python", "3.11.0", "h0", 0),
			rec("python", "3.12.0", "h0", 0),
		},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"numpy"},
		Available: avail,
		Strategy:  Highest,
	})
	if err != nil || report != nil {
		t.Fatalf("unexpected failure: err=%v report=%v", err, report)
	}
	for _, r := range records {
		if r.Name == "python" && r.Version != "3.12.0" {
			t.Errorf("expected Highest strategy to pick python 3.12.0, got %s", r.Version)
		}
	}
}

func TestSolveLowestVersionStrategy(t *testing.T) {
	avail := StaticAvailable{
		"numpy": {
			rec("numpy", "1.24.0", "py311h0", 0),
			rec("numpy", "1.26.0", "py311h0", 0),
		},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"numpy"},
		Available: avail,
		Strategy:  LowestVersion,
	})
	if err != nil || report != nil {
		t.Fatalf("unexpected failure: err=%v report=%v", err, report)
	}
	if records[0].Version != "1.24.0" {
		t.Errorf("expected lowest version 1.24.0, got %s", records[0].Version)
	}
}

func TestSolveUnsatisfiableReportsConflict(t *testing.T) {
	avail := StaticAvailable{
		"numpy": {rec("numpy", "1.26.0", "py311h0", 0)},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"numpy >=2.0"},
		Available: avail,
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no solution, got %+v", records)
	}
	if report == nil {
		t.Fatal("expected a conflict report")
	}
	if !containsName(report.Edges, "numpy") {
		t.Errorf("expected conflict edges to mention numpy, got %+v", report.Edges)
	}
	if report.Tree() == "" {
		t.Error("expected non-empty tree rendering")
	}
}

func containsName(edges []ConflictEdge, name string) bool {
	for _, e := range edges {
		if e.Name == name {
			return true
		}
	}
	return false
}

func TestSolveRespectsConstrains(t *testing.T) {
	a := rec("a", "1.0", "0", 0, "b")
	a.Constrains = []string{"b <2.0"}
	avail := StaticAvailable{
		"a": {a},
		"b": {
			rec("b", "1.5.0", "0", 0),
			rec("b", "2.5.0", "0", 0),
		},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"a"},
		Available: avail,
		Strategy:  Highest,
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if report != nil {
		t.Fatalf("expected a solution, got conflict: %s", report.Tree())
	}
	for _, r := range records {
		if r.Name == "b" && r.Version != "1.5.0" {
			t.Errorf("expected constrains to keep b below 2.0, got %s", r.Version)
		}
	}
}

func TestSolvePinnedForcesExactRecord(t *testing.T) {
	pinnedRec := rec("numpy", "1.24.0", "py311h0", 0).PackageRecord
	avail := StaticAvailable{
		"numpy": {
			rec("numpy", "1.24.0", "py311h0", 0),
			rec("numpy", "1.26.0", "py311h0", 0),
		},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs: []string{"numpy"},
		Pinned:    []pkgrecord.PackageRecord{pinnedRec},
		Available: avail,
		Strategy:  Highest,
	})
	if err != nil || report != nil {
		t.Fatalf("unexpected failure: err=%v report=%v", err, report)
	}
	if records[0].Version != "1.24.0" {
		t.Errorf("expected pinned version 1.24.0 despite Highest strategy, got %s", records[0].Version)
	}
}

func TestSolveVirtualPackageSatisfiesDependency(t *testing.T) {
	avail := StaticAvailable{
		"mypkg": {rec("mypkg", "1.0", "0", 0, "__unix")},
	}
	records, report, err := Solve(context.Background(), Input{
		RootSpecs:       []string{"mypkg"},
		Available:       avail,
		VirtualPackages: []pkgrecord.PackageRecord{{Name: "__unix", Version: "0", Build: "0"}},
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if report != nil {
		t.Fatalf("expected a solution, got conflict: %s", report.Tree())
	}
	if len(records) != 1 || records[0].Name != "mypkg" {
		t.Errorf("expected solution containing only mypkg, got %+v", records)
	}
}
